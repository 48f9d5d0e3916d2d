package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Snapshot file names embed the save time: bodies-20240131T120000Z.json.
const (
	snapshotPrefix = "bodies-"
	snapshotSuffix = ".json"
	snapshotLayout = "20060102T150405Z"
)

// Snapshot is one catalog document saved on disk.
type Snapshot struct {
	Path    string
	SavedAt time.Time
}

// Cache keeps the most recent fetched catalogs on disk so a restart can
// come up without the network.
type Cache struct {
	dir  string
	keep int
}

// NewCache creates a Cache in dir retaining keep snapshots (default 5).
func NewCache(dir string, keep int) *Cache {
	if keep <= 0 {
		keep = 5
	}
	return &Cache{dir: dir, keep: keep}
}

// Write saves data as a snapshot taken at ts, then drops the oldest
// snapshots beyond the retention count. The file appears atomically.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	name := snapshotPrefix + ts.UTC().Format(snapshotLayout) + snapshotSuffix
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}
	return c.prune()
}

// Snapshots lists saved snapshots, newest first. A missing directory is
// an empty cache.
func (c *Cache) Snapshots() ([]Snapshot, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, snapshotPrefix+"*"+snapshotSuffix))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	snaps := make([]Snapshot, 0, len(paths))
	for _, p := range paths {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), snapshotPrefix), snapshotSuffix)
		ts, err := time.Parse(snapshotLayout, stamp)
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{Path: p, SavedAt: ts})
	}
	slices.SortFunc(snaps, func(a, b Snapshot) int {
		return b.SavedAt.Compare(a.SavedAt)
	})
	return snaps, nil
}

// LoadLatest reads the newest snapshot.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	snaps, err := c.Snapshots()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, fmt.Errorf("no snapshots in %s", c.dir)
	}
	data, err := os.ReadFile(snaps[0].Path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, snaps[0].SavedAt, nil
}

func (c *Cache) prune() error {
	snaps, err := c.Snapshots()
	if err != nil {
		return err
	}
	for _, s := range snaps[min(len(snaps), c.keep):] {
		if err := os.Remove(s.Path); err != nil {
			return fmt.Errorf("pruning snapshot: %w", err)
		}
	}
	return nil
}
