// Package crypto provides signed action tokens for booking decisions.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Base62 alphabet for ID generation
const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// ActionClaims is the payload carried by a signed action token.
type ActionClaims struct {
	BookingID string    `json:"booking_id"`
	Action    string    `json:"action"`
	ExpiresAt time.Time `json:"expires_at"`
	Nonce     string    `json:"nonce"`
}

// TokenSigner mints and verifies HMAC-signed bearer tokens for booking
// decisions. The bearer format is base64url(payload) + "." + hex(hmac).
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner creates a signer keyed from the server secret.
func NewTokenSigner(secret string) (*TokenSigner, error) {
	secretBytes, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		// Use raw string if not valid base64
		secretBytes = []byte(secret)
	}

	if len(secretBytes) < 16 {
		return nil, fmt.Errorf("server secret must be at least 16 bytes")
	}

	return &TokenSigner{secret: secretBytes}, nil
}

// Sign produces a bearer token for the given booking and action. The nonce is
// filled in by Sign; the caller never sees the token again once issued, so
// only HashSHA256(token) should be persisted.
func (s *TokenSigner) Sign(bookingID, action string, expiresAt time.Time) (string, error) {
	if action != "approve" && action != "reject" {
		return "", fmt.Errorf("invalid action: %s", action)
	}

	nonce, err := generateBase62(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	claims := ActionClaims{
		BookingID: bookingID,
		Action:    action,
		ExpiresAt: expiresAt.UTC(),
		Nonce:     nonce,
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	payload := base64.RawURLEncoding.EncodeToString(data)
	return payload + "." + s.signature(payload), nil
}

// Verify checks a bearer token's signature and shape. It returns the decoded
// claims, or nil and false for any malformed or tampered input. Expiry and
// single-use are enforced by the token store, not here.
func (s *TokenSigner) Verify(token string) (*ActionClaims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, false
	}

	expected := s.signature(parts[0])
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return nil, false
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, false
	}

	var claims ActionClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, false
	}

	if claims.BookingID == "" || claims.Nonce == "" || claims.ExpiresAt.IsZero() {
		return nil, false
	}
	if claims.Action != "approve" && claims.Action != "reject" {
		return nil, false
	}

	return &claims, true
}

func (s *TokenSigner) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashSHA256 computes the hex SHA-256 hash of a bearer token for storage.
func HashSHA256(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// GenerateNanoID creates a short unique ID with prefix.
func GenerateNanoID(prefix string, length int) (string, error) {
	encoded, err := generateBase62(length)
	if err != nil {
		return "", fmt.Errorf("failed to generate nanoid: %w", err)
	}
	return prefix + encoded, nil
}

// GenerateBookingID creates a booking ID (bkg_ prefix).
func GenerateBookingID() (string, error) {
	return GenerateNanoID("bkg_", 16)
}

// GenerateTokenID creates an action token record ID (atk_ prefix).
func GenerateTokenID() (string, error) {
	return GenerateNanoID("atk_", 16)
}

// GenerateOAuthState creates a random state parameter for the OAuth flow.
func GenerateOAuthState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// generateBase62 generates n random base62 characters.
func generateBase62(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	result := make([]byte, n)
	for i := 0; i < n; i++ {
		result[i] = base62Chars[bytes[i]%62]
	}

	return string(result), nil
}
