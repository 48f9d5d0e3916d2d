// Package catalog holds the set of bodies the simulation propagates:
// identity, display color and epoch-referenced orbital elements.
package catalog

import (
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
)

// Entry is one body definition.
type Entry struct {
	Name     string          `json:"name"`
	Color    string          `json:"color"`
	IsSun    bool            `json:"is_sun,omitempty"`
	Elements *orbit.Elements `json:"elements,omitempty"`
}

// Dataset is a complete catalog from one source.
type Dataset struct {
	Source   string
	LoadedAt time.Time
	Bodies   []Entry
}

// Find returns the entry with the given name.
func (ds *Dataset) Find(name string) (Entry, bool) {
	for _, e := range ds.Bodies {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Body returns a fresh mutable body record for the entry.
// The element set is copied so the body cannot alter the catalog.
func (e Entry) Body() *orbit.Body {
	b := &orbit.Body{Name: e.Name, Color: e.Color, IsSun: e.IsSun}
	if e.Elements != nil {
		el := *e.Elements
		b.Elements = &el
	}
	return b
}

// NewBodies returns fresh body records for every entry in the dataset.
func (ds *Dataset) NewBodies() []*orbit.Body {
	out := make([]*orbit.Body, len(ds.Bodies))
	for i, e := range ds.Bodies {
		out[i] = e.Body()
	}
	return out
}
