package registry

import (
	"go.uber.org/zap"

	"nexus/backend/internal/storage"
	"nexus/backend/pkg/logger"
)

// SettingsRegistry manages the global, process-wide settings document.
// One shared instance is loaded at startup and mutated by explicit
// update calls. Values are kept as a nested JSON shape; no validation is
// applied beyond that shape — callers own sane thresholds and limits.
type SettingsRegistry struct {
	store  *storage.Store
	values map[string]interface{}
	logger *zap.Logger
}

// LoadSettings loads the shared settings document, creating and
// persisting the canonical defaults when it is missing or unreadable.
func LoadSettings(store *storage.Store) *SettingsRegistry {
	r := &SettingsRegistry{
		store:  store,
		logger: logger.Named("settings"),
	}

	values := make(map[string]interface{})
	err := store.ReadOrDefault(store.SettingsPath(), &values, func() interface{} {
		return defaultSettings()
	})
	if err != nil {
		r.logger.Warn("Settings load degraded to defaults", zap.Error(err))
		values = defaultSettings()
	}
	r.values = values
	return r
}

func defaultSettings() map[string]interface{} {
	return map[string]interface{}{
		"auto_linking": map[string]interface{}{
			"enabled":         true,
			"max_connections": 3,
			"threshold":       0.6,
		},
		"manual_connection_ai_assist": false,
		"expansion": map[string]interface{}{
			"max_subnodes": 5,
		},
		"content_generation": map[string]interface{}{
			"tone":         "Technical", // Technical, Concise, Creative
			"detail_level": "High",
		},
	}
}

// Values returns a shallow copy of the settings shape
func (r *SettingsRegistry) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Get returns the value for a top-level key, or def when absent
func (r *SettingsRegistry) Get(key string, def interface{}) interface{} {
	if v, ok := r.values[key]; ok {
		return v
	}
	return def
}

// Update merges a partial settings shape over the current one (shallow,
// by top-level key) and persists the result.
func (r *SettingsRegistry) Update(updates map[string]interface{}) error {
	for k, v := range updates {
		r.values[k] = v
	}
	return r.Save()
}

// Save persists the settings document
func (r *SettingsRegistry) Save() error {
	if err := r.store.Write(r.store.SettingsPath(), r.values); err != nil {
		r.logger.Error("Failed to save settings", zap.Error(err))
		return err
	}
	return nil
}

// AutoLinkingEnabled reports whether ingestion should auto-link new nodes
func (r *SettingsRegistry) AutoLinkingEnabled() bool {
	return r.sectionBool("auto_linking", "enabled", true)
}

// MaxConnections is the auto-linking connection limit per node
func (r *SettingsRegistry) MaxConnections() int {
	return r.sectionInt("auto_linking", "max_connections", 3)
}

// ConfidenceThreshold is the minimum confidence for auto-linked edges
func (r *SettingsRegistry) ConfidenceThreshold() float64 {
	return r.sectionFloat("auto_linking", "threshold", 0.6)
}

// MaxSubnodes is the cap on nodes created by a downward expansion
func (r *SettingsRegistry) MaxSubnodes() int {
	return r.sectionInt("expansion", "max_subnodes", 5)
}

// Tone is the content generation tone
func (r *SettingsRegistry) Tone() string {
	return r.sectionString("content_generation", "tone", "Technical")
}

// DetailLevel is the content generation detail level
func (r *SettingsRegistry) DetailLevel() string {
	return r.sectionString("content_generation", "detail_level", "High")
}

func (r *SettingsRegistry) section(name string) map[string]interface{} {
	if s, ok := r.values[name].(map[string]interface{}); ok {
		return s
	}
	return nil
}

func (r *SettingsRegistry) sectionBool(section, key string, def bool) bool {
	if v, ok := r.section(section)[key].(bool); ok {
		return v
	}
	return def
}

func (r *SettingsRegistry) sectionString(section, key, def string) string {
	if v, ok := r.section(section)[key].(string); ok {
		return v
	}
	return def
}

func (r *SettingsRegistry) sectionFloat(section, key string, def float64) float64 {
	switch v := r.section(section)[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (r *SettingsRegistry) sectionInt(section, key string, def int) int {
	switch v := r.section(section)[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
