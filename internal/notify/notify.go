// Package notify delivers finished searches to the outside world. All
// sinks implement model.Notifier and are called once per completed or
// failed search; cancelled searches never reach them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/parallel"
)

// Multi notifies all its members in parallel. A failing member does not
// stop the others, the errors are joined.
type Multi []model.Notifier

func (m Multi) NotifyCompleted(ctx context.Context, snap model.Snapshot) error {
	return parallel.Each(ctx, m, func(ctx context.Context, n model.Notifier) error {
		return n.NotifyCompleted(ctx, snap)
	})
}

func (m Multi) NotifyFailed(ctx context.Context, snap model.Snapshot) error {
	return parallel.Each(ctx, m, func(ctx context.Context, n model.Notifier) error {
		return n.NotifyFailed(ctx, snap)
	})
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if closer, ok := n.(model.NotifyCloser); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the sinks configured in cfg.Notify. Without any
// configuration the searches are logged.
func FromConfig(_ context.Context, cfg model.Config) (Multi, error) {
	ncfg := cfg.Notify
	if ncfg == nil {
		return Multi{LogNotifier{}}, nil
	}
	var ret Multi
	if ncfg.Log {
		ret = append(ret, LogNotifier{})
	}
	if ncfg.Dir != "" {
		n, err := NewDirNotifier(os.ExpandEnv(ncfg.Dir))
		if err != nil {
			return nil, fmt.Errorf("notify.dir: %w", err)
		}
		ret = append(ret, n)
	}
	if ncfg.Webhook != nil {
		n, err := NewWebhookNotifier(*ncfg.Webhook)
		if err != nil {
			_ = ret.Close()
			return nil, fmt.Errorf("notify.webhook: %w", err)
		}
		ret = append(ret, n)
	}
	return ret, nil
}

// Summarize returns a one line description of a finished search.
func Summarize(snap model.Snapshot) string {
	elapsed := snap.Elapsed().Round(time.Millisecond)
	switch snap.Status {
	case model.StatusCompleted:
		return fmt.Sprintf("%s finished: %s in %s", snap.Kind.Label(), plural(len(snap.Results), "result"), elapsed)
	case model.StatusError:
		return fmt.Sprintf("%s failed after %s: %s", snap.Kind.Label(), elapsed, snap.Error)
	case model.StatusCancelled:
		return fmt.Sprintf("%s cancelled after %s with %s", snap.Kind.Label(), elapsed, plural(len(snap.Results), "result"))
	default:
		return fmt.Sprintf("%s %s: %s so far", snap.Kind.Label(), snap.Status, plural(len(snap.Results), "result"))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
