package autonomous

import (
	"context"
	"log/slog"
)

// LogSender is the default ChannelSender. Outbound channel delivery is an
// external adapter's job; until one is wired, confirmations are logged so the
// step still has an observable effect.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, channel, userID, message string) error {
	s.Logger.InfoContext(ctx, "Confirmation ready for channel delivery",
		"channel", channel, "user_id", userID, "message", message)

	return nil
}
