// Package settings resolves and persists the exchange-rate source.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// SettingsKey holds the JSON settings record.
	SettingsKey = "cm_settings_v1"
	// CompatKey holds the bare rates URL read by older callers.
	CompatKey = "ratesUrl"

	DefaultRatesURL = "https://oranlevii.github.io/cost-manager-rates/rates.json"
)

// Settings is the single mutable configuration record.
type Settings struct {
	RatesURL string `json:"ratesUrl"`
}

// Store is the key/value persistence both backends provide.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSettings(ctx context.Context, values map[string]string) error
}

type Resolver struct {
	store      Store
	defaultURL string
}

// NewResolver returns a resolver falling back to defaultURL, or to
// DefaultRatesURL when defaultURL is blank.
func NewResolver(store Store, defaultURL string) *Resolver {
	defaultURL = strings.TrimSpace(defaultURL)
	if defaultURL == "" {
		defaultURL = DefaultRatesURL
	}
	return &Resolver{store: store, defaultURL: defaultURL}
}

// Resolve returns the rates source: the settings record first, then the
// compat key, then the built-in default. Unreadable records count as absent.
func (r *Resolver) Resolve(ctx context.Context) string {
	if s, ok := r.load(ctx); ok {
		if u := strings.TrimSpace(s.RatesURL); u != "" {
			return u
		}
	}

	direct, ok, err := r.store.GetSetting(ctx, CompatKey)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read compat rates URL, falling back", "key", CompatKey, "error", err)
	} else if ok {
		if u := strings.TrimSpace(direct); u != "" {
			return u
		}
	}

	return r.defaultURL
}

// Load returns the persisted settings record, or the zero record when none
// is stored.
func (r *Resolver) Load(ctx context.Context) Settings {
	s, _ := r.load(ctx)
	return s
}

func (r *Resolver) load(ctx context.Context) (Settings, bool) {
	raw, ok, err := r.store.GetSetting(ctx, SettingsKey)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read settings record, falling back", "key", SettingsKey, "error", err)
		return Settings{}, false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Settings{}, false
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		slog.WarnContext(ctx, "Ignoring malformed settings record", "key", SettingsKey, "error", err)
		return Settings{}, false
	}
	return s, true
}

// Save trims and persists s, mirroring the URL into the compat key in the
// same write.
func (r *Resolver) Save(ctx context.Context, s Settings) error {
	s.RatesURL = strings.TrimSpace(s.RatesURL)
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := r.store.PutSettings(ctx, map[string]string{
		SettingsKey: string(raw),
		CompatKey:   s.RatesURL,
	}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	slog.InfoContext(ctx, "Settings saved", "rates_url", s.RatesURL)
	return nil
}
