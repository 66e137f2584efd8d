package crypto

import (
	"encoding/base64"
	"testing"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("a-passphrase-derived-key")
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}

	plaintext := "1//refresh-token-value"
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if string(ciphertext) == plaintext {
		t.Fatal("Ciphertext equals plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}

	if decrypted != plaintext {
		t.Fatalf("Round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptor_Base64Key(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor with base64 key failed: %v", err)
	}

	ciphertext, err := enc.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted != "hello" {
		t.Fatalf("Round trip mismatch: got %q", decrypted)
	}
}

func TestEncryptor_TamperedCiphertext(t *testing.T) {
	enc, _ := NewEncryptor("a-passphrase-derived-key")

	ciphertext, err := enc.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip a byte in the ciphertext body
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := enc.Decrypt(ciphertext); err == nil {
		t.Fatal("Expected decryption of tampered ciphertext to fail")
	}
}

func TestEncryptor_WrongKey(t *testing.T) {
	enc1, _ := NewEncryptor("key-one")
	enc2, _ := NewEncryptor("key-two")

	ciphertext, _ := enc1.Encrypt("secret")
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Fatal("Expected decryption with the wrong key to fail")
	}
}

func TestEncryptor_ShortCiphertext(t *testing.T) {
	enc, _ := NewEncryptor("a-passphrase-derived-key")
	if _, err := enc.Decrypt([]byte{0x01, 0x02}); err == nil {
		t.Fatal("Expected error for short ciphertext")
	}
}

func TestEncryptor_EmptyKey(t *testing.T) {
	if _, err := NewEncryptor(""); err == nil {
		t.Fatal("Expected error for empty key")
	}
}

func TestEncryptor_NonceUniqueness(t *testing.T) {
	enc, _ := NewEncryptor("a-passphrase-derived-key")

	a, _ := enc.Encrypt("same plaintext")
	b, _ := enc.Encrypt("same plaintext")

	if string(a) == string(b) {
		t.Fatal("Two encryptions of the same plaintext produced identical ciphertext")
	}
}
