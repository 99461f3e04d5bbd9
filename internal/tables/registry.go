// Package tables manages the club table registry: the mapping from a
// table id to its display name and external scoreboard code.
package tables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/kv"
)

const storageKey = "clubTables"

// ErrNotFound is returned when no registry entry has the given id.
var ErrNotFound = errors.New("tables: entry not found")

// Entry is one configured table.
type Entry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// DefaultEntries returns the stock table configuration seeded on first
// run and restored by Reset.
func DefaultEntries() []Entry {
	return []Entry{
		{ID: 1, Name: "Table 1", Code: "f8c4bd61"},
		{ID: 2, Name: "Table 2", Code: "a3b9ae98"},
		{ID: 3, Name: "Table 3", Code: "dc64dc33"},
		{ID: 4, Name: "Table 4", Code: "89869242"},
		{ID: 5, Name: "Table 5", Code: "670487c4"},
		{ID: 6, Name: "Table 6", Code: "6caca43c"},
		{ID: 7, Name: "Table 7", Code: "143accfc"},
		{ID: 8, Name: "Table 8", Code: "089ce6b4"},
		{ID: 9, Name: "Table 9", Code: "e3b48627"},
	}
}

// Registry persists table entries under a single key-value document.
type Registry struct {
	kv *kv.Store
}

// NewRegistry creates a registry over the given key-value store.
func NewRegistry(store *kv.Store) *Registry {
	return &Registry{kv: store}
}

// Seed persists the default entries if no registry document exists yet.
func (r *Registry) Seed(ctx context.Context) error {
	_, found, err := r.kv.Get(ctx, storageKey)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return r.save(ctx, DefaultEntries())
}

// List returns all entries, falling back to the defaults when nothing
// has been persisted.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	raw, found, err := r.kv.Get(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return DefaultEntries(), nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("tables: corrupt registry document: %w", err)
	}
	if len(entries) == 0 {
		return DefaultEntries(), nil
	}
	return entries, nil
}

// Lookup returns the entry with the given id.
func (r *Registry) Lookup(ctx context.Context, id int64) (Entry, bool, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Add appends a new entry with the next free id.
func (r *Registry) Add(ctx context.Context, name, code string) (Entry, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	var maxID int64
	for _, e := range entries {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	entry := Entry{ID: maxID + 1, Name: strings.TrimSpace(name), Code: strings.TrimSpace(code)}
	if err := r.save(ctx, append(entries, entry)); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Update renames an entry or changes its scoreboard code. Matches
// created before the update keep their snapshot of the old values.
func (r *Registry) Update(ctx context.Context, id int64, name, code string) error {
	entries, err := r.List(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Name = strings.TrimSpace(name)
			entries[i].Code = strings.TrimSpace(code)
			return r.save(ctx, entries)
		}
	}
	return ErrNotFound
}

// Remove deletes the entry with the given id.
func (r *Registry) Remove(ctx context.Context, id int64) error {
	entries, err := r.List(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return ErrNotFound
	}
	return r.save(ctx, kept)
}

// Replace overwrites the whole registry with the given entries.
func (r *Registry) Replace(ctx context.Context, entries []Entry) error {
	for i := range entries {
		entries[i].Name = strings.TrimSpace(entries[i].Name)
		entries[i].Code = strings.TrimSpace(entries[i].Code)
	}
	return r.save(ctx, entries)
}

// Reset restores the default entries.
func (r *Registry) Reset(ctx context.Context) error {
	return r.save(ctx, DefaultEntries())
}

func (r *Registry) save(ctx context.Context, entries []Entry) error {
	if err := Validate(entries); err != nil {
		return err
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("tables: marshal registry: %w", err)
	}
	return r.kv.PutNow(ctx, storageKey, raw, broadcast.TopicTables)
}

// Validate enforces the registry invariants: positive unique ids,
// non-empty unique names and non-empty unique codes.
func Validate(entries []Entry) error {
	ids := make(map[int64]struct{}, len(entries))
	names := make(map[string]struct{}, len(entries))
	codes := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ID <= 0 {
			return fmt.Errorf("tables: id must be a positive number, got %d", e.ID)
		}
		if e.Name == "" {
			return fmt.Errorf("tables: entry %d has an empty name", e.ID)
		}
		if e.Code == "" {
			return fmt.Errorf("tables: entry %d has an empty code", e.ID)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("tables: duplicate id %d", e.ID)
		}
		if _, dup := names[e.Name]; dup {
			return fmt.Errorf("tables: duplicate name %q", e.Name)
		}
		if _, dup := codes[e.Code]; dup {
			return fmt.Errorf("tables: duplicate code %q", e.Code)
		}
		ids[e.ID] = struct{}{}
		names[e.Name] = struct{}{}
		codes[e.Code] = struct{}{}
	}
	return nil
}
