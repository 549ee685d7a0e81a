package notify

import (
	"context"
	"log/slog"

	"github.com/CZERTAINLY/leadseeker/internal/model"
)

// LogNotifier reports finished searches through slog.
type LogNotifier struct{}

func (LogNotifier) NotifyCompleted(ctx context.Context, snap model.Snapshot) error {
	slog.InfoContext(ctx, Summarize(snap),
		slog.String("search_id", snap.ID),
		slog.Int("results", len(snap.Results)),
		slog.Duration("elapsed", snap.Elapsed()),
	)
	return nil
}

func (LogNotifier) NotifyFailed(ctx context.Context, snap model.Snapshot) error {
	slog.ErrorContext(ctx, Summarize(snap),
		slog.String("search_id", snap.ID),
		slog.String("reason", snap.Error),
	)
	return nil
}
