// Package settings persists the display preferences shown on the TV
// page: the selected theme and the editable title and subtitle.
package settings

import (
	"context"
	"fmt"

	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/kv"
)

const (
	keyTheme    = "selectedTheme"
	keyTitle    = "tv_title"
	keySubtitle = "tv_subtitle"
)

// Display defaults.
const (
	DefaultTheme    = "ffb"
	DefaultTitle    = "Matches en cours"
	DefaultSubtitle = "BlackBall TD n°x Gironde - 2025/2026"
)

// ThemeIDs lists the theme identifiers the display knows how to render.
var ThemeIDs = []string{"ffb", "ultimate_pool"}

// Settings is the persisted display configuration.
type Settings struct {
	Theme    string `json:"theme"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// Store reads and writes display settings; each value lives under its
// own key so a theme change never rewrites the titles.
type Store struct {
	kv *kv.Store
}

// NewStore creates a settings store.
func NewStore(store *kv.Store) *Store {
	return &Store{kv: store}
}

// Get returns the current settings, with defaults filled in for unset
// values.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	out := Settings{Theme: DefaultTheme, Title: DefaultTitle, Subtitle: DefaultSubtitle}

	for _, item := range []struct {
		key  string
		dest *string
	}{
		{keyTheme, &out.Theme},
		{keyTitle, &out.Title},
		{keySubtitle, &out.Subtitle},
	} {
		raw, found, err := s.kv.Get(ctx, item.key)
		if err != nil {
			return Settings{}, err
		}
		if found {
			*item.dest = string(raw)
		}
	}
	return out, nil
}

// SetTheme persists the selected theme id.
func (s *Store) SetTheme(ctx context.Context, id string) error {
	if !KnownTheme(id) {
		return fmt.Errorf("settings: unknown theme %q", id)
	}
	return s.kv.PutNow(ctx, keyTheme, []byte(id), broadcast.TopicSettings)
}

// SetTitles persists the TV title and subtitle.
func (s *Store) SetTitles(ctx context.Context, title, subtitle string) error {
	if err := s.kv.PutNow(ctx, keyTitle, []byte(title), broadcast.TopicSettings); err != nil {
		return err
	}
	return s.kv.PutNow(ctx, keySubtitle, []byte(subtitle), broadcast.TopicSettings)
}

// Reset removes every stored value, returning the display to defaults.
func (s *Store) Reset(ctx context.Context) error {
	for _, key := range []string{keyTheme, keyTitle, keySubtitle} {
		if err := s.kv.Delete(ctx, key, broadcast.TopicSettings); err != nil {
			return err
		}
	}
	return nil
}

// KnownTheme reports whether id is a renderable theme.
func KnownTheme(id string) bool {
	for _, t := range ThemeIDs {
		if t == id {
			return true
		}
	}
	return false
}
