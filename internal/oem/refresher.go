package oem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arshansani/ISS-Tracker/internal/metrics"
)

// RefreshConfig controls how and when the dataset is reloaded.
type RefreshConfig struct {
	// Interval between scheduled feed fetches.
	Interval time.Duration
	// FeedFile, when set, replaces HTTP fetching with reads of a local
	// OEM file. The file is watched for changes.
	FeedFile string
	// SnapshotTTL is how old a persisted snapshot may be and still be
	// served at startup without a fetch. Zero forces a startup fetch.
	SnapshotTTL time.Duration
}

// Refresher keeps the store populated: snapshot or feed at startup, then
// periodic fetches. A failed refresh never evicts the current dataset.
type Refresher struct {
	fetcher  *Fetcher
	store    *Store
	snapshot *Snapshot
	cfg      RefreshConfig
	logger   *slog.Logger
	trigger  chan struct{}
}

// NewRefresher creates a Refresher. snapshot may be nil to disable the
// persistent cache.
func NewRefresher(fetcher *Fetcher, store *Store, snapshot *Snapshot, cfg RefreshConfig, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher:  fetcher,
		store:    store,
		snapshot: snapshot,
		cfg:      cfg,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Bootstrap performs the initial load: a fresh snapshot if one exists,
// otherwise a feed fetch, falling back to a stale snapshot when the feed
// is unreachable. An error means the store is still empty; the caller may
// keep running and let Run retry.
func (r *Refresher) Bootstrap(ctx context.Context) error {
	if r.cfg.FeedFile != "" {
		return r.refreshFromFile()
	}

	var (
		stale   []byte
		staleAt time.Time
	)
	if r.snapshot != nil {
		data, fetchedAt, err := r.snapshot.Load()
		switch {
		case err == nil && time.Since(fetchedAt) <= r.cfg.SnapshotTTL:
			if applyErr := r.applySnapshot(data, fetchedAt); applyErr == nil {
				metrics.IncSnapshotLoad("hit")
				r.logger.Info("loaded dataset from snapshot",
					"fetched_at", fetchedAt.Format(time.RFC3339),
					"state_vectors", len(r.store.Get().StateVectors),
				)
				return nil
			} else {
				r.logger.Warn("snapshot unreadable, fetching feed", "error", applyErr)
			}
		case err == nil:
			stale = data
			staleAt = fetchedAt
		case errors.Is(err, ErrNoSnapshot):
			metrics.IncSnapshotLoad("miss")
		default:
			metrics.IncSnapshotLoad("error")
			r.logger.Warn("failed to load snapshot", "error", err)
		}
	}

	if err := r.refresh(ctx); err != nil {
		if stale != nil {
			if applyErr := r.applySnapshot(stale, staleAt); applyErr == nil {
				metrics.IncSnapshotLoad("stale")
				r.logger.Warn("feed unavailable, serving stale snapshot",
					"error", err,
					"fetched_at", staleAt.Format(time.RFC3339),
				)
				return nil
			}
		}
		return err
	}
	return nil
}

// Run refreshes the dataset on the configured interval until ctx is
// cancelled. TriggerRefresh forces an early run. In file mode the feed
// file is also watched and reloaded on change.
func (r *Refresher) Run(ctx context.Context) {
	if r.cfg.FeedFile != "" {
		go r.watchFile(ctx)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				r.logger.Error("scheduled refresh failed, keeping current dataset", "error", err)
			}
		case <-r.trigger:
			if err := r.refresh(ctx); err != nil {
				r.logger.Error("requested refresh failed, keeping current dataset", "error", err)
			}
		}
	}
}

// TriggerRefresh schedules an immediate refresh. It never blocks; if a
// refresh is already pending the call is a no-op.
func (r *Refresher) TriggerRefresh() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Refresher) refresh(ctx context.Context) error {
	if r.cfg.FeedFile != "" {
		return r.refreshFromFile()
	}

	r.store.Lock()
	defer r.store.Unlock()

	raw, err := r.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncFeedFetch("error")
		return err
	}
	fetchedAt := time.Now().UTC()

	ds, err := Parse(raw)
	if err != nil {
		metrics.IncFeedFetch("error")
		metrics.IncParseError()
		return fmt.Errorf("parsing OEM feed: %w", err)
	}
	ds.Source = r.fetcher.SourceURL()
	ds.FetchedAt = fetchedAt

	r.store.Set(ds)
	metrics.IncFeedFetch("success")
	metrics.SetDatasetSize(len(ds.StateVectors))
	r.logger.Info("dataset refreshed",
		"source", ds.Source,
		"state_vectors", len(ds.StateVectors),
		"epoch_min", ds.EpochRange.Min.Format(EpochLayout),
		"epoch_max", ds.EpochRange.Max.Format(EpochLayout),
	)

	if r.snapshot != nil {
		if err := r.snapshot.Store(raw, fetchedAt); err != nil {
			r.logger.Warn("failed to persist snapshot", "error", err)
		}
	}
	return nil
}

func (r *Refresher) refreshFromFile() error {
	r.store.Lock()
	defer r.store.Unlock()

	raw, err := os.ReadFile(r.cfg.FeedFile)
	if err != nil {
		metrics.IncFeedFetch("error")
		return fmt.Errorf("reading feed file: %w", err)
	}

	ds, err := Parse(raw)
	if err != nil {
		metrics.IncFeedFetch("error")
		metrics.IncParseError()
		return fmt.Errorf("parsing feed file %s: %w", r.cfg.FeedFile, err)
	}
	ds.Source = r.cfg.FeedFile
	ds.FetchedAt = time.Now().UTC()

	r.store.Set(ds)
	metrics.IncFeedFetch("success")
	metrics.SetDatasetSize(len(ds.StateVectors))
	r.logger.Info("dataset loaded from file", "path", r.cfg.FeedFile, "state_vectors", len(ds.StateVectors))
	return nil
}

func (r *Refresher) applySnapshot(raw []byte, fetchedAt time.Time) error {
	ds, err := Parse(raw)
	if err != nil {
		metrics.IncParseError()
		return err
	}
	ds.Source = "snapshot"
	ds.FetchedAt = fetchedAt

	r.store.Set(ds)
	metrics.SetDatasetSize(len(ds.StateVectors))
	return nil
}

// watchFile reloads the feed file whenever it changes. Editors often
// replace the file on save, which drops the watch, so it is re-added
// after remove/rename events.
func (r *Refresher) watchFile(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Error("failed to create file watcher", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(r.cfg.FeedFile); err != nil {
		r.logger.Error("failed to watch feed file", "path", r.cfg.FeedFile, "error", err)
		return
	}
	r.logger.Info("watching feed file", "path", r.cfg.FeedFile)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := r.refreshFromFile(); err != nil {
					r.logger.Warn("feed file changed but reload failed, keeping current dataset", "error", err)
				}
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				_ = watcher.Remove(r.cfg.FeedFile)
				if err := watcher.Add(r.cfg.FeedFile); err != nil {
					r.logger.Error("failed to re-watch feed file", "path", r.cfg.FeedFile, "error", err)
					return
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("file watcher error", "error", werr)
		}
	}
}
