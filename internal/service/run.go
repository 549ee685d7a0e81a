package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CZERTAINLY/leadseeker/internal/api"
	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/notify"
	"github.com/CZERTAINLY/leadseeker/internal/searchlock"
	"github.com/CZERTAINLY/leadseeker/internal/session"
	"github.com/CZERTAINLY/leadseeker/internal/store"
	"github.com/CZERTAINLY/leadseeker/internal/upstream"

	"golang.org/x/sync/errgroup"
)

var ErrSearchFailed = errors.New("search failed")

// Serve implements the CLI serve command: the HTTP API and the recurring
// searches run until ctx is cancelled or one of them fails.
func Serve(ctx context.Context, cfg model.Config) error {
	client, err := upstream.New(cfg)
	if err != nil {
		return err
	}

	notifiers, err := notify.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := notifiers.Close(); err != nil {
			slog.ErrorContext(ctx, "closing notifiers", "error", err)
		}
	}()

	var opts []api.Option
	if cfg.Store != nil && cfg.Store.Enabled {
		st, err := store.Open(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		// closed together with the other notifiers
		notifiers = append(notifiers, st)
		opts = append(opts, api.WithHistory(st))
	}

	g, ctx := errgroup.WithContext(ctx)

	lock := searchlock.New()
	manager := session.NewManager(ctx, lock, client, session.WithNotifier(notifiers))
	defer func() {
		_ = manager.Close()
	}()

	supervisor, err := NewSupervisor(ctx, cfg.Schedule, manager)
	if err != nil {
		return err
	}
	opts = append(opts, api.WithSchedules(supervisor))
	server := api.New(manager, lock, opts...)

	addr := model.DefaultServerAddr
	if cfg.Server != nil {
		addr = cfg.Server.Addr.ListenAddr()
	}

	g.Go(func() error {
		return supervisor.Do(ctx)
	})
	g.Go(func() error {
		return server.Serve(ctx, addr)
	})
	return g.Wait()
}

// Search implements the CLI search command. Progress goes to stderr, the
// final snapshot as JSON to stdout. Cancelling ctx cancels the search.
func Search(ctx context.Context, cfg model.Config, kind model.SearchKind, filters model.SearchFilters, stdout, stderr io.Writer) error {
	client, err := upstream.New(cfg)
	if err != nil {
		return err
	}
	notifiers, err := notify.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = notifiers.Close()
	}()

	manager := session.NewManager(ctx, searchlock.New(), client, session.WithNotifier(notifiers))
	defer func() {
		_ = manager.Close()
	}()

	id, err := manager.StartSearch(ctx, kind, filters)
	if err != nil {
		return err
	}
	done, err := manager.Done(id)
	if err != nil {
		return err
	}
	unsubscribe, err := manager.Subscribe(id, progressPrinter(stderr))
	if err != nil {
		return err
	}
	defer unsubscribe()

	select {
	case <-done:
	case <-ctx.Done():
		// the manager cancels the search with ctx
		<-done
	}

	snap, err := manager.Snapshot(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(stderr, notify.Summarize(snap))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	switch snap.Status {
	case model.StatusError:
		return fmt.Errorf("%w: %s", ErrSearchFailed, snap.Error)
	case model.StatusCancelled:
		return context.Cause(ctx)
	}
	return nil
}

// progressPrinter prints a line whenever the status, phase or percentage
// changes.
func progressPrinter(w io.Writer) session.Subscriber {
	var last string
	return func(snap model.Snapshot) {
		if snap.Status.Terminal() {
			return
		}
		pct := "?"
		if p := snap.Progress.Percent(); p >= 0 {
			pct = fmt.Sprintf("%d%%", p)
		}
		line := fmt.Sprintf("%s %s %s", snap.Status, snap.Phase, pct)
		if line == last {
			return
		}
		last = line
		fmt.Fprintf(w, "%-8s %-10s %5s  %d processed, %d found\n",
			snap.Status, snap.Phase, pct, snap.Progress.Processed, snap.Progress.Found)
	}
}
