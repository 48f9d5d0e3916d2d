package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
)

// Loader populates a Store from the configured sources.
type Loader struct {
	store   *Store
	cache   *Cache   // optional
	fetcher *Fetcher // optional
	file    string   // optional local JSON catalog
	logger  *slog.Logger
}

// NewLoader creates a Loader. cache and fetcher may be nil and file empty.
func NewLoader(store *Store, cache *Cache, fetcher *Fetcher, file string, logger *slog.Logger) *Loader {
	return &Loader{
		store:   store,
		cache:   cache,
		fetcher: fetcher,
		file:    file,
		logger:  logger,
	}
}

// CanFetch reports whether a remote source is configured.
func (l *Loader) CanFetch() bool {
	return l.fetcher != nil && l.fetcher.SourceURL() != ""
}

// LoadInitial fills the store from the local file, then the newest disk
// snapshot, then the built-in table, taking the first that parses.
func (l *Loader) LoadInitial() *Dataset {
	if l.file != "" {
		data, err := os.ReadFile(l.file)
		if err != nil {
			l.logger.Warn("failed to read catalog file", "path", l.file, "error", err)
		} else if ds, err := l.install(data, "file:"+l.file, time.Now()); err != nil {
			l.logger.Warn("failed to parse catalog file", "path", l.file, "error", err)
		} else {
			return ds
		}
	}

	if ds := l.loadSnapshot(); ds != nil {
		return ds
	}

	ds := &Dataset{Source: "builtin", LoadedAt: time.Now(), Bodies: Default()}
	l.set(ds)
	return ds
}

// Refresh fetches the remote catalog, snapshots it to disk and installs it.
// An unchanged remote document keeps the current dataset.
func (l *Loader) Refresh(ctx context.Context) (*Dataset, error) {
	if !l.CanFetch() {
		return nil, fmt.Errorf("catalog fetch not configured")
	}

	var ds *Dataset
	err := l.store.Exclusive(func() error {
		data, err := l.fetcher.Fetch(ctx)
		if errors.Is(err, ErrNotModified) {
			if ds = l.store.Get(); ds != nil {
				metrics.IncCatalogFetch("not_modified")
				l.logger.Debug("catalog unchanged", "source_url", l.fetcher.SourceURL())
				return nil
			}
			// Nothing installed to keep: fetch unconditionally.
			l.fetcher.forget()
			data, err = l.fetcher.Fetch(ctx)
		}
		if err != nil {
			metrics.IncCatalogFetch("error")
			return err
		}

		now := time.Now()
		ds, err = l.install(data, l.fetcher.SourceURL(), now)
		if err != nil {
			// Do not let a 304 pin the rejected document.
			l.fetcher.forget()
			metrics.IncCatalogFetch("invalid")
			return err
		}
		metrics.IncCatalogFetch("ok")

		if l.cache != nil {
			if err := l.cache.Write(data, now); err != nil {
				l.logger.Warn("failed to write catalog cache", "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// loadSnapshot installs the newest cached snapshot that parses.
func (l *Loader) loadSnapshot() *Dataset {
	if l.cache == nil {
		return nil
	}
	snaps, err := l.cache.Snapshots()
	if err != nil {
		l.logger.Warn("failed to list catalog cache", "error", err)
		return nil
	}
	for _, snap := range snaps {
		data, err := os.ReadFile(snap.Path)
		if err != nil {
			l.logger.Warn("failed to read cached catalog", "path", snap.Path, "error", err)
			continue
		}
		ds, err := l.install(data, "cache", snap.SavedAt)
		if err != nil {
			l.logger.Warn("skipping unusable cached catalog", "path", snap.Path, "error", err)
			continue
		}
		return ds
	}
	l.logger.Info("no usable catalog cache found", "snapshots", len(snaps))
	return nil
}

func (l *Loader) install(data []byte, source string, ts time.Time) (*Dataset, error) {
	entries, err := Parse(bytes.NewReader(data), l.logger)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Source: source, LoadedAt: ts, Bodies: entries}
	l.set(ds)
	return ds, nil
}

func (l *Loader) set(ds *Dataset) {
	prev := l.store.Set(ds)
	metrics.SetCatalogBodies(len(ds.Bodies))

	attrs := []any{
		"source", ds.Source,
		"bodies", len(ds.Bodies),
		"loaded_at", ds.LoadedAt.UTC().Format(time.RFC3339),
	}
	if prev != nil {
		attrs = append(attrs, "replaced_source", prev.Source, "replaced_bodies", len(prev.Bodies))
	}
	l.logger.Info("catalog loaded", attrs...)
}
