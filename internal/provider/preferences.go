package provider

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Preferences is the persisted provider order and enablement. The list
// order is the priority order.
type Preferences struct {
	Providers []ProviderPreference `yaml:"providers"`
}

type ProviderPreference struct {
	ID      string `yaml:"id"`
	Enabled bool   `yaml:"enabled"`
}

// LoadPreferences reads path. A missing file yields empty preferences.
func LoadPreferences(path string) (Preferences, error) {
	var prefs Preferences
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("failed to read provider preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("failed to parse provider preferences %s: %w", path, err)
	}
	return prefs, nil
}

func SavePreferences(path string, prefs Preferences) error {
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode provider preferences: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create preferences directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write provider preferences: %w", err)
	}
	return nil
}

// Preferences captures the current registry state.
func (r *Registry) Preferences() Preferences {
	var prefs Preferences
	for _, e := range r.Entries() {
		prefs.Providers = append(prefs.Providers, ProviderPreference{ID: e.ID, Enabled: e.Enabled})
	}
	return prefs
}

// Apply sets enablement and order from prefs. Listed providers take
// priorities 0..k-1 in list order; unlisted ones keep their relative order
// after them. Unknown IDs are logged and skipped.
func (r *Registry) Apply(prefs Preferences) {
	current := r.Entries()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := 0
	listed := make(map[string]bool, len(prefs.Providers))
	for _, p := range prefs.Providers {
		e, ok := r.entries[p.ID]
		if !ok || listed[p.ID] {
			r.logger.Warn("Ignoring provider preference", "provider", p.ID)
			continue
		}
		listed[p.ID] = true
		e.Enabled = p.Enabled
		e.Priority = next
		next++
	}
	for _, c := range current {
		if listed[c.ID] {
			continue
		}
		if e, ok := r.entries[c.ID]; ok {
			e.Priority = next
			next++
		}
	}
}
