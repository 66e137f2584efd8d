package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/tokens"
	"github.com/example/visitbook/internal/util"
)

// CleanupWorker enforces data retention. Bookings themselves are never
// deleted; only spent token hashes, old audit entries, and resolved webhook
// failures are pruned.
type CleanupWorker struct {
	db        *database.DB
	tokenRepo *tokens.Repository
	config    *config.RetentionConfig
	interval  time.Duration
}

// NewCleanupWorker creates a new cleanup worker.
func NewCleanupWorker(db *database.DB, tokenRepo *tokens.Repository, cfg *config.RetentionConfig) *CleanupWorker {
	return &CleanupWorker{
		db:        db,
		tokenRepo: tokenRepo,
		config:    cfg,
		interval:  1 * time.Hour,
	}
}

// Start runs the cleanup worker until the context is cancelled.
func (w *CleanupWorker) Start(ctx context.Context) {
	if !w.config.Enabled {
		util.Info("Retention cleanup disabled")
		return
	}

	util.Info("Starting cleanup worker",
		"interval", w.interval,
		"audit_days", w.config.AuditLogDays,
		"webhook_failure_days", w.config.WebhookFailuresDays,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			util.Info("Cleanup worker stopping")
			return
		case <-ticker.C:
			w.runCleanup(ctx)
		}
	}
}

func (w *CleanupWorker) runCleanup(ctx context.Context) {
	util.Debug("Running cleanup tasks")

	w.cleanupActionTokens(ctx)
	w.cleanupAuditLogs(ctx)
	w.cleanupWebhookFailures(ctx)
	w.maybeVacuum(ctx)
}

// cleanupActionTokens removes token records a day past their expiry. Any
// decision they could authorize is long since impossible.
func (w *CleanupWorker) cleanupActionTokens(ctx context.Context) {
	deleted, err := w.tokenRepo.DeleteExpired(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		util.Error("Failed to cleanup action tokens", "error", err)
		return
	}

	if deleted > 0 {
		util.Info("Cleaned up expired action tokens", "count", deleted)
	}
}

func (w *CleanupWorker) cleanupAuditLogs(ctx context.Context) {
	result, err := w.db.ExecContext(ctx, `
		DELETE FROM audit_log
		WHERE timestamp < datetime('now', ?)
	`, fmt.Sprintf("-%d days", w.config.AuditLogDays))
	if err != nil {
		util.Error("Failed to cleanup audit logs", "error", err)
		return
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		util.Info("Cleaned up old audit logs", "count", rows)
	}
}

func (w *CleanupWorker) cleanupWebhookFailures(ctx context.Context) {
	result, err := w.db.ExecContext(ctx, `
		DELETE FROM webhook_failures
		WHERE created_at < datetime('now', ?)
	`, fmt.Sprintf("-%d days", w.config.WebhookFailuresDays))
	if err != nil {
		util.Error("Failed to cleanup webhook failures", "error", err)
		return
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		util.Info("Cleaned up old webhook failures", "count", rows)
	}
}

// maybeVacuum runs VACUUM at most once every 24 hours, tracked in settings.
func (w *CleanupWorker) maybeVacuum(ctx context.Context) {
	var lastVacuum string
	err := w.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = 'last_vacuum'
	`).Scan(&lastVacuum)

	if err == nil {
		lastTime, _ := time.Parse(time.RFC3339, lastVacuum)
		if time.Since(lastTime) < 24*time.Hour {
			return
		}
	}

	util.Info("Running database VACUUM")
	if err := w.db.Vacuum(); err != nil {
		util.Error("Failed to VACUUM database", "error", err)
		return
	}

	_, err = w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value)
		VALUES ('last_vacuum', ?)
	`, time.Now().Format(time.RFC3339))
	if err != nil {
		util.Error("Failed to update last vacuum time", "error", err)
	}
}
