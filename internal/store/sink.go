// In file: internal/store/sink.go
package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// SaveBestEffort writes sess detached from the caller's cancellation and
// bounded by writeTimeout. Failures are logged, never returned.
func SaveBestEffort(ctx context.Context, sink SessionSink, sess Session, logger *zap.Logger) {
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := sink.SaveSession(ctx, sess); err != nil {
		logger.Warn("failed to persist enhancement session", zap.String("session_id", sess.ID.String()), zap.Error(err))
	}
}
