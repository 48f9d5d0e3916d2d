package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Parse reads a JSON array of entries from r. Entries with an empty or
// duplicate name, or unusable orbital elements, are skipped with a warning.
// A catalog without any usable entry is an error.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	var raw []Entry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	entries := make([]Entry, 0, len(raw))
	for i, e := range raw {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			logger.Warn("skipping catalog entry without name", "index", i)
			continue
		}
		if seen[e.Name] {
			logger.Warn("skipping duplicate catalog entry", "index", i, "body", e.Name)
			continue
		}
		if e.IsSun {
			// The Sun is pinned at the origin; elements are meaningless.
			e.Elements = nil
		} else if err := e.Elements.Validate(); err != nil {
			logger.Warn("skipping catalog entry with invalid elements", "index", i, "body", e.Name, "error", err)
			continue
		}
		seen[e.Name] = true
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog contains no usable entries")
	}
	return entries, nil
}

// Marshal encodes entries in the format Parse accepts.
func Marshal(entries []Entry) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return data, nil
}
