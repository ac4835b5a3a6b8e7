package weaver

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexus/backend/internal/graph"
	"nexus/backend/internal/registry"
	"nexus/backend/internal/storage"
	"nexus/backend/pkg/logger"
)

// Weaver is the logic engine. It owns the active canvas's graph store,
// context registry and chat log, plus the shared canvas and settings
// registries, delegates CRUD to them and triggers write-through
// persistence on every mutation.
//
// All mutation assumes a single logical writer; there is no locking.
type Weaver struct {
	storage  *storage.Store
	settings *registry.SettingsRegistry
	canvases *registry.CanvasRegistry

	activeID string
	graph    *graph.Store
	resolver *graph.Resolver
	context  *registry.ContextRegistry
	chat     *ChatLog

	logger *zap.Logger
}

// SaveStatus reports a manual save-all: each resource is persisted
// independently and a partial save is reported, not hidden.
type SaveStatus struct {
	Timestamp time.Time `json:"timestamp"`
	CanvasID  string    `json:"canvas_id"`
	Saved     []string  `json:"saved"`
	Errors    []string  `json:"errors"`
}

// New creates the Weaver, loading the shared registries and the active
// canvas. A corrupted canvas degrades to empty defaults and never
// blocks startup.
func New(store *storage.Store) *Weaver {
	w := &Weaver{
		storage:  store,
		settings: registry.LoadSettings(store),
		canvases: registry.LoadCanvasRegistry(store),
		logger:   logger.Named("weaver"),
	}
	w.loadActiveCanvas()
	return w
}

// loadActiveCanvas loads graph, context and chat for the canvas the
// registry points at, replacing all three together.
func (w *Weaver) loadActiveCanvas() {
	activeID := w.canvases.ActiveID()

	graphStore := w.loadGraph(activeID)
	contextRegistry := registry.LoadContextRegistry(w.storage, activeID)
	chatLog := w.loadChat(activeID)

	// Swap the per-canvas resources as one unit; no caller may observe
	// a partially switched state.
	w.activeID = activeID
	w.graph = graphStore
	w.resolver = graph.NewResolver(graphStore)
	w.context = contextRegistry
	w.chat = chatLog

	w.logger.Info("Loaded canvas",
		zap.String("canvas_id", activeID),
		zap.Int("nodes", graphStore.NodeCount()),
		zap.Int("edges", graphStore.EdgeCount()),
	)
}

func (w *Weaver) loadGraph(canvasID string) *graph.Store {
	path := w.storage.GraphPath(canvasID)

	if canvasID == registry.DefaultCanvasID {
		w.storage.MigrateLegacy(w.storage.LegacyGraphPath(), path)
	}

	if !w.storage.Exists(path) {
		return graph.NewStore()
	}
	doc := &graph.Document{}
	if err := w.storage.Read(path, doc); err != nil {
		w.logger.Warn("Failed to load graph, starting empty",
			zap.String("canvas_id", canvasID),
			zap.Error(err),
		)
		return graph.NewStore()
	}
	return graph.FromDocument(doc)
}

func (w *Weaver) loadChat(canvasID string) *ChatLog {
	path := w.storage.ChatPath(canvasID)
	if !w.storage.Exists(path) {
		return NewChatLog()
	}
	var records []SessionRecord
	if err := w.storage.Read(path, &records); err != nil {
		w.logger.Warn("Failed to load chat history, starting empty",
			zap.String("canvas_id", canvasID),
			zap.Error(err),
		)
		return NewChatLog()
	}
	return &ChatLog{records: records}
}

// Accessors

// ActiveCanvasID returns the id of the loaded canvas
func (w *Weaver) ActiveCanvasID() string { return w.activeID }

// Graph returns the active canvas's graph store
func (w *Weaver) Graph() *graph.Store { return w.graph }

// Context returns the active canvas's context registry
func (w *Weaver) Context() *registry.ContextRegistry { return w.context }

// Settings returns the shared settings registry
func (w *Weaver) Settings() *registry.SettingsRegistry { return w.settings }

// Canvases returns the shared canvas registry
func (w *Weaver) Canvases() *registry.CanvasRegistry { return w.canvases }

// Chat returns the active canvas's chat log
func (w *Weaver) Chat() *ChatLog { return w.chat }

// Canvas lifecycle

// SwitchCanvas activates another canvas and swaps the per-canvas
// resources together
func (w *Weaver) SwitchCanvas(canvasID string) error {
	if err := w.canvases.SetActive(canvasID); err != nil {
		return err
	}
	w.loadActiveCanvas()
	return nil
}

// CreateCanvas registers a new canvas, activates it and loads it
func (w *Weaver) CreateCanvas(name string) (string, error) {
	canvasID, err := w.canvases.Create(name)
	if err != nil {
		return "", err
	}
	w.loadActiveCanvas()
	return canvasID, nil
}

// DeleteCanvas removes a canvas. Deleting the active canvas re-points
// to the default canvas and reloads it.
func (w *Weaver) DeleteCanvas(canvasID string) error {
	wasActive := canvasID == w.activeID
	if err := w.canvases.Delete(canvasID); err != nil {
		return err
	}
	if wasActive {
		w.loadActiveCanvas()
	}
	return nil
}

// Graph mutation, write-through

// AddDocumentNode ingests content as a node. Unset classification
// fields default to the uncategorized taxonomy entry.
func (w *Weaver) AddDocumentNode(id, content string, meta map[string]interface{}) string {
	node := &graph.Node{
		ID:        id,
		NodeType:  graph.NodeTypeChild,
		Type:      "document",
		Content:   content,
		Module:    registry.DefaultModule,
		MainTopic: registry.DefaultTopic,
		CreatedAt: time.Now(),
	}
	if meta != nil {
		node.Apply(meta)
	}
	w.graph.UpsertNode(node)
	w.persistGraph()
	return id
}

// UpsertNode inserts or fully replaces a node
func (w *Weaver) UpsertNode(node *graph.Node) {
	w.graph.UpsertNode(node)
	w.persistGraph()
}

// UpdateNode merges a partial attribute set into an existing node
func (w *Weaver) UpdateNode(id string, updates map[string]interface{}) error {
	if err := w.graph.UpdateNode(id, updates); err != nil {
		return err
	}
	w.persistGraph()
	return nil
}

// UpdateNodePositions moves several nodes at once, persisting once.
// Unknown ids are skipped; it reports whether anything moved.
func (w *Weaver) UpdateNodePositions(positions map[string]graph.Position) bool {
	updated := false
	for id, pos := range positions {
		p := pos
		if err := w.graph.UpdateNode(id, map[string]interface{}{"position": &p}); err == nil {
			updated = true
		}
	}
	if updated {
		w.persistGraph()
	}
	return updated
}

// DeleteNode removes a node and its incident edges
func (w *Weaver) DeleteNode(id string) error {
	if err := w.graph.DeleteNode(id); err != nil {
		return err
	}
	w.persistGraph()
	return nil
}

// AddEdge inserts a justified edge, enforcing the hierarchy rule
func (w *Weaver) AddEdge(source, target, justification string, confidence float64) error {
	if err := w.graph.AddEdge(source, target, justification, confidence); err != nil {
		return err
	}
	w.persistGraph()
	return nil
}

// DeleteEdge removes an edge
func (w *Weaver) DeleteEdge(source, target string) error {
	if err := w.graph.DeleteEdge(source, target); err != nil {
		return err
	}
	w.persistGraph()
	return nil
}

// UpdateEdge merges a partial attribute set into an existing edge
func (w *Weaver) UpdateEdge(source, target string, updates map[string]interface{}) error {
	if err := w.graph.UpdateEdge(source, target, updates); err != nil {
		return err
	}
	w.persistGraph()
	return nil
}

// GetSubgraph resolves the blast radius of a seed set
func (w *Weaver) GetSubgraph(seedIDs []string, depth int) *graph.Subgraph {
	return w.resolver.Resolve(seedIDs, depth)
}

// NodeSummaries returns the collaborator-facing node list
func (w *Weaver) NodeSummaries(excludeID string) []graph.Summary {
	return w.graph.Summaries(excludeID)
}

// Taxonomy

// UpsertStructure creates taxonomy entries, never overwriting existing
// descriptions
func (w *Weaver) UpsertStructure(topic, module, description string) error {
	return w.context.UpsertStructure(topic, module, description)
}

// StructureSummary renders the taxonomy for the collaborator prompt
func (w *Weaver) StructureSummary() string {
	return w.context.StructureSummary()
}

// Chat history

// AppendChatRecord appends a session snapshot and persists the log
func (w *Weaver) AppendChatRecord(record SessionRecord) {
	w.chat.Append(record)
	if err := w.saveChat(); err != nil {
		w.logger.Error("Failed to save chat history", zap.Error(err))
	}
}

// Persistence

// persistGraph write-through saves the graph after a mutation. A write
// failure is logged, not surfaced: the in-memory mutation stands and
// memory diverges from disk until the next successful write.
func (w *Weaver) persistGraph() {
	if err := w.saveGraph(); err != nil {
		w.logger.Error("Failed to save graph",
			zap.String("canvas_id", w.activeID),
			zap.Error(err),
		)
	}
}

func (w *Weaver) saveGraph() error {
	if err := w.storage.Write(w.storage.GraphPath(w.activeID), w.graph.Document()); err != nil {
		return err
	}
	w.canvases.Touch(w.activeID)
	return nil
}

func (w *Weaver) saveChat() error {
	return w.storage.Write(w.storage.ChatPath(w.activeID), w.chat.records)
}

// SaveAll persists graph, taxonomy, chat log and settings
// independently, collecting per-resource results instead of aborting on
// the first failure.
func (w *Weaver) SaveAll() *SaveStatus {
	status := &SaveStatus{
		Timestamp: time.Now(),
		CanvasID:  w.activeID,
		Saved:     []string{},
		Errors:    []string{},
	}

	resources := []struct {
		name string
		save func() error
	}{
		{"graph", w.saveGraph},
		{"context", w.context.Save},
		{"chat_history", w.saveChat},
		{"settings", w.settings.Save},
	}

	var mu sync.Mutex
	var g errgroup.Group
	results := make([]error, len(resources))
	for i, res := range resources {
		i, res := i, res
		g.Go(func() error {
			err := res.save()
			mu.Lock()
			results[i] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range resources {
		if results[i] != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", res.name, results[i]))
		} else {
			status.Saved = append(status.Saved, res.name)
		}
	}

	w.logger.Info("Manual save completed",
		zap.Strings("saved", status.Saved),
		zap.Strings("errors", status.Errors),
	)
	return status
}
