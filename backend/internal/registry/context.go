package registry

import (
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"nexus/backend/internal/storage"
	"nexus/backend/pkg/logger"
)

// Default classification for nodes the collaborator could not place
const (
	DefaultTopic  = "Uncategorized"
	DefaultModule = "General"
)

// palette holds the colors assigned to newly created topics
var palette = []string{
	"#0A84FF", // blue
	"#30D158", // green
	"#BF5AF2", // purple
	"#FF9F0A", // orange
	"#FF375F", // red
	"#FFD60A", // yellow
	"#64D2FF", // teal
	"#5E5CE6", // indigo
	"#FF453A", // pink
}

const defaultTopicColor = "#6B7280" // gray

// ContextRegistry manages the persistent Topic -> Module taxonomy of one
// canvas. Topic and module descriptions are write-once: later upserts
// with the same name never overwrite them.
type ContextRegistry struct {
	canvasID string
	store    *storage.Store
	taxonomy *Taxonomy
	logger   *zap.Logger
}

// LoadContextRegistry loads (or creates) the taxonomy of a canvas. A
// missing document on the default canvas adopts the legacy shared
// taxonomy document once; otherwise the canonical default structure is
// created and persisted.
func LoadContextRegistry(store *storage.Store, canvasID string) *ContextRegistry {
	r := &ContextRegistry{
		canvasID: canvasID,
		store:    store,
		logger:   logger.Named("context"),
	}

	if canvasID == "default" {
		store.MigrateLegacy(store.LegacyContextPath(), store.ContextPath(canvasID))
	}

	taxonomy := &Taxonomy{}
	err := store.ReadOrDefault(store.ContextPath(canvasID), taxonomy, func() interface{} {
		return defaultTaxonomy()
	})
	if err != nil {
		r.logger.Warn("Context load degraded to defaults",
			zap.String("canvas_id", canvasID),
			zap.Error(err),
		)
		taxonomy = defaultTaxonomy()
	}
	if taxonomy.Topics == nil {
		taxonomy.Topics = NewTopicSet()
	}
	r.taxonomy = taxonomy
	return r
}

func defaultTaxonomy() *Taxonomy {
	modules := NewModuleSet()
	modules.Set(DefaultModule, "General notes and documents")
	topics := NewTopicSet()
	topics.Set(DefaultTopic, &Topic{
		Description: "Default container for new nodes",
		Color:       defaultTopicColor,
		Modules:     modules,
	})
	return &Taxonomy{Topics: topics}
}

// Taxonomy returns the current tree
func (r *ContextRegistry) Taxonomy() *Taxonomy { return r.taxonomy }

// CanvasID returns the owning canvas id
func (r *ContextRegistry) CanvasID() string { return r.canvasID }

// UpsertStructure creates the topic if absent, assigning a palette
// color, and the module if absent. Existing descriptions are never
// overwritten. The taxonomy is persisted after every call.
func (r *ContextRegistry) UpsertStructure(topicName, moduleName, description string) error {
	topic, ok := r.taxonomy.Topics.Get(topicName)
	if !ok {
		topicDescription := description
		if moduleName != "" {
			topicDescription = "Auto-generated topic"
		}
		topic = &Topic{
			Description: topicDescription,
			Color:       palette[rand.Intn(len(palette))],
			Modules:     NewModuleSet(),
		}
		r.taxonomy.Topics.Set(topicName, topic)
		r.logger.Info("Created new topic", zap.String("topic", topicName))
	}

	if moduleName != "" {
		if _, ok := topic.Modules.Get(moduleName); !ok {
			topic.Modules.Set(moduleName, description)
			r.logger.Info("Created new module",
				zap.String("module", moduleName),
				zap.String("topic", topicName),
			)
		}
	}

	return r.Save()
}

// StructureSummary renders the full tree as ordered text for the
// content intelligence prompt: topics in insertion order, then each
// topic's modules in insertion order.
func (r *ContextRegistry) StructureSummary() string {
	var b strings.Builder
	b.WriteString("### CURRENT CONTEXT REGISTRY ###")
	for _, topicName := range r.taxonomy.Topics.Names() {
		topic, _ := r.taxonomy.Topics.Get(topicName)
		fmt.Fprintf(&b, "\n- Topic: %s (%s)", topicName, topic.Description)
		for _, moduleName := range topic.Modules.Names() {
			description, _ := topic.Modules.Get(moduleName)
			fmt.Fprintf(&b, "\n  - Module: %s (%s)", moduleName, description)
		}
	}
	return b.String()
}

// Save persists the taxonomy document
func (r *ContextRegistry) Save() error {
	if err := r.store.Write(r.store.ContextPath(r.canvasID), r.taxonomy); err != nil {
		r.logger.Error("Failed to save context registry",
			zap.String("canvas_id", r.canvasID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
