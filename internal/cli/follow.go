package cli

import (
	"context"
	"time"

	"github.com/tOgg1/gatechat/internal/logging"
	"github.com/tOgg1/gatechat/internal/session"
)

// follow refreshes sess every interval until ctx ends.
func follow(ctx context.Context, sess *session.Session, interval time.Duration) {
	logger := logging.WithChat("follow", sess.ChatID())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := sess.Refresh(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("refresh failed")
				continue
			}
			if result.Appended > 0 || result.Updated > 0 {
				logger.Info().Int("appended", result.Appended).Int("updated", result.Updated).Msg("chat changed")
			}
		}
	}
}
