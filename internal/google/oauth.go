// Package google provides Google Calendar OAuth and API integration for the
// showroom booking calendar.
package google

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/crypto"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/util"
)

// refreshBuffer is how close to expiry a cached access token may get before
// it is refreshed.
const refreshBuffer = 60 * time.Second

// OAuthManager owns the single stored calendar connection: the encrypted
// refresh token, the cached access token, and the refresh dance. Concurrent
// refreshes are serialized in-process; at the storage layer last-write-wins
// is fine because any self-consistent (token, expiry) pair is usable.
type OAuthManager struct {
	config    *oauth2.Config
	db        *database.DB
	encryptor *crypto.Encryptor
	mu        sync.Mutex

	cachedToken *oauth2.Token
}

// NewOAuthManager creates a new OAuth manager.
func NewOAuthManager(cfg *config.Config, db *database.DB, encryptor *crypto.Encryptor) *OAuthManager {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURI,
		Scopes:       cfg.Google.Scopes,
		Endpoint:     google.Endpoint,
	}

	return &OAuthManager{
		config:    oauthConfig,
		db:        db,
		encryptor: encryptor,
	}
}

// IsConfigured checks if OAuth client credentials are present.
func (m *OAuthManager) IsConfigured() bool {
	return m.config.ClientID != "" && m.config.ClientSecret != ""
}

// AuthURL returns the OAuth authorization URL for the operator to visit.
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code and persists the connection.
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) error {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("provider returned no refresh token; revoke access and reconnect")
	}

	accountEmail := m.fetchAccountEmail(ctx, token)
	if err := m.saveConnection(ctx, token, accountEmail); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	m.mu.Lock()
	m.cachedToken = token
	m.mu.Unlock()

	util.Info("Calendar connection established", "account_email", accountEmail)
	return nil
}

// fetchAccountEmail resolves the address of the account that granted access,
// for the admin status view and the audit trail. Best effort: the connection
// is still usable when the userinfo scope was declined.
func (m *OAuthManager) fetchAccountEmail(ctx context.Context, token *oauth2.Token) string {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(m.config.TokenSource(ctx, token)))
	if err != nil {
		util.Warn("Failed to build userinfo client", "error", err)
		return ""
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		util.Warn("Failed to fetch account email", "error", err)
		return ""
	}
	return info.Email
}

// GetValidToken returns a usable access token, refreshing via the stored
// refresh token when the cached one is absent or expires within the buffer.
func (m *OAuthManager) GetValidToken(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cachedToken != nil && time.Now().Add(refreshBuffer).Before(m.cachedToken.Expiry) {
		return m.cachedToken, nil
	}

	token, err := m.loadToken(ctx)
	if err != nil {
		return nil, err
	}

	if token.AccessToken == "" || token.Expiry.Before(time.Now().Add(refreshBuffer)) {
		newToken, err := m.config.TokenSource(ctx, token).Token()
		if err != nil {
			util.Error("Calendar token refresh failed", "error", err)
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}
		if newToken.RefreshToken == "" {
			newToken.RefreshToken = token.RefreshToken
		}

		// Persist the refreshed pair. Failure here is logged but not fatal:
		// the in-memory token is still valid for this process.
		if err := m.saveConnection(ctx, newToken, ""); err != nil {
			util.Error("Failed to persist refreshed token", "error", err)
		}
		token = newToken
	}

	m.cachedToken = token
	return token, nil
}

// HTTPClient returns an HTTP client that authenticates with the connection.
func (m *OAuthManager) HTTPClient(ctx context.Context) (*http.Client, error) {
	token, err := m.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return m.config.Client(ctx, token), nil
}

// HasConnection reports whether a calendar connection is stored.
func (m *OAuthManager) HasConnection(ctx context.Context) bool {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calendar_connection WHERE id = 'primary'
	`).Scan(&count)
	return err == nil && count > 0
}

// Connection returns the stored connection metadata (no secrets).
func (m *OAuthManager) Connection(ctx context.Context) (*database.CalendarConnection, error) {
	var conn database.CalendarConnection
	var createdAt, updatedAt string
	var expiresAt sql.NullString

	err := m.db.QueryRowContext(ctx, `
		SELECT id, account_email, calendar_id, access_expires_at, created_at, updated_at
		FROM calendar_connection WHERE id = 'primary'
	`).Scan(&conn.ID, &conn.AccountEmail, &conn.CalendarID, &expiresAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no calendar connection")
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if expiresAt.Valid {
		if t, err := util.ParseSQLiteTimestamp(expiresAt.String); err == nil {
			conn.AccessExpiresAt = sql.NullTime{Time: t, Valid: true}
		}
	}
	if t, err := util.ParseSQLiteTimestamp(createdAt); err == nil {
		conn.CreatedAt = t
	}
	if t, err := util.ParseSQLiteTimestamp(updatedAt); err == nil {
		conn.UpdatedAt = t
	}
	return &conn, nil
}

// CalendarID returns the bound calendar, defaulting to "primary".
func (m *OAuthManager) CalendarID(ctx context.Context) string {
	conn, err := m.Connection(ctx)
	if err != nil || conn.CalendarID == "" {
		return "primary"
	}
	return conn.CalendarID
}

// DeleteConnection removes the stored connection.
func (m *OAuthManager) DeleteConnection(ctx context.Context) error {
	m.mu.Lock()
	m.cachedToken = nil
	m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, `DELETE FROM calendar_connection WHERE id = 'primary'`)
	return err
}

// saveConnection upserts the connection with both tokens encrypted at rest.
// An empty accountEmail keeps whatever was stored before, so token refreshes
// do not erase the address captured on connect.
func (m *OAuthManager) saveConnection(ctx context.Context, token *oauth2.Token, accountEmail string) error {
	if token.RefreshToken == "" {
		return fmt.Errorf("no refresh token to save")
	}

	refreshEnc, err := m.encryptor.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	var accessEnc []byte
	var accessExpiry interface{}
	if token.AccessToken != "" {
		accessEnc, err = m.encryptor.Encrypt(token.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt access token: %w", err)
		}
		accessExpiry = util.SQLiteTimestamp(token.Expiry)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO calendar_connection (id, account_email, refresh_token_enc, access_token_enc, access_expires_at, updated_at)
		VALUES ('primary', ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			account_email = COALESCE(NULLIF(excluded.account_email, ''), calendar_connection.account_email),
			refresh_token_enc = excluded.refresh_token_enc,
			access_token_enc = excluded.access_token_enc,
			access_expires_at = excluded.access_expires_at,
			updated_at = datetime('now')
	`, accountEmail, refreshEnc, accessEnc, accessExpiry)

	return err
}

// loadToken reads and decrypts the stored connection. Decryption failures
// propagate; a corrupt token must never masquerade as "not connected".
func (m *OAuthManager) loadToken(ctx context.Context) (*oauth2.Token, error) {
	var refreshEnc []byte
	var accessEnc []byte
	var expiresAt sql.NullString

	err := m.db.QueryRowContext(ctx, `
		SELECT refresh_token_enc, access_token_enc, access_expires_at
		FROM calendar_connection
		WHERE id = 'primary'
	`).Scan(&refreshEnc, &accessEnc, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no calendar connection configured")
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	refreshToken, err := m.encryptor.Decrypt(refreshEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
		// Forces a refresh unless a cached access token is present below
		Expiry: time.Now().Add(-time.Hour),
	}

	if len(accessEnc) > 0 && expiresAt.Valid {
		accessToken, err := m.encryptor.Decrypt(accessEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
		if expiry, err := util.ParseSQLiteTimestamp(expiresAt.String); err == nil {
			token.AccessToken = accessToken
			token.Expiry = expiry
		}
	}

	return token, nil
}

// oauthState is the single-use CSRF state for the connect flow, stored in
// the settings table with a short expiry.
type oauthState struct {
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoreOAuthState stores a state parameter for the connect flow.
func (m *OAuthManager) StoreOAuthState(ctx context.Context, state string) error {
	data, err := json.Marshal(oauthState{
		State:     state,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	})
	if err != nil {
		return err
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ('oauth_state', ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, string(data))
	return err
}

// ValidateOAuthState validates and consumes a state parameter.
func (m *OAuthManager) ValidateOAuthState(ctx context.Context, state string) error {
	var valueStr string
	err := m.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = 'oauth_state'
	`).Scan(&valueStr)

	if err == sql.ErrNoRows {
		return fmt.Errorf("no OAuth state found")
	}
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var stored oauthState
	if err := json.Unmarshal([]byte(valueStr), &stored); err != nil {
		return fmt.Errorf("invalid state data: %w", err)
	}
	if stored.State != state {
		return fmt.Errorf("state mismatch")
	}
	if time.Now().After(stored.ExpiresAt) {
		return fmt.Errorf("state expired")
	}

	m.db.ExecContext(ctx, `DELETE FROM settings WHERE key = 'oauth_state'`)
	return nil
}
