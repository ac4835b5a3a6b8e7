package registry

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/backend/internal/storage"
	"nexus/backend/pkg/errors"
	"nexus/backend/pkg/logger"
)

// DefaultCanvasID is the canvas that always exists and can never be
// deleted
const DefaultCanvasID = "default"

// CanvasInfo is one entry of the shared canvas index
type CanvasInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// CanvasListing is a canvas annotated with its active flag
type CanvasListing struct {
	CanvasInfo
	IsActive bool `json:"is_active"`
}

type canvasIndex struct {
	ActiveID string                 `json:"active_id"`
	Canvases map[string]*CanvasInfo `json:"canvases"`
}

// CanvasRegistry manages the shared index of workspaces and which one is
// active. Exactly one canvas is active at any time.
type CanvasRegistry struct {
	store  *storage.Store
	index  *canvasIndex
	logger *zap.Logger
}

// LoadCanvasRegistry loads (or creates) the canvas index. The default
// canvas is created on first access.
func LoadCanvasRegistry(store *storage.Store) *CanvasRegistry {
	r := &CanvasRegistry{
		store:  store,
		logger: logger.Named("canvas"),
	}

	index := &canvasIndex{}
	err := store.ReadOrDefault(store.CanvasIndexPath(), index, func() interface{} {
		now := time.Now()
		return &canvasIndex{
			ActiveID: DefaultCanvasID,
			Canvases: map[string]*CanvasInfo{
				DefaultCanvasID: {
					ID:           DefaultCanvasID,
					Name:         "Main Canvas",
					CreatedAt:    now,
					LastModified: now,
				},
			},
		}
	})
	if err != nil {
		r.logger.Warn("Canvas index load degraded to defaults", zap.Error(err))
		now := time.Now()
		index = &canvasIndex{
			ActiveID: DefaultCanvasID,
			Canvases: map[string]*CanvasInfo{
				DefaultCanvasID: {ID: DefaultCanvasID, Name: "Main Canvas", CreatedAt: now, LastModified: now},
			},
		}
	}
	if index.Canvases == nil {
		index.Canvases = make(map[string]*CanvasInfo)
	}
	// The default canvas always exists, whatever the document said
	if _, ok := index.Canvases[DefaultCanvasID]; !ok {
		now := time.Now()
		index.Canvases[DefaultCanvasID] = &CanvasInfo{
			ID: DefaultCanvasID, Name: "Main Canvas", CreatedAt: now, LastModified: now,
		}
	}
	if index.ActiveID == "" {
		index.ActiveID = DefaultCanvasID
	}
	r.index = index
	return r
}

// List returns all canvases annotated with the active flag, ordered by
// creation time
func (r *CanvasRegistry) List() []CanvasListing {
	active := r.ActiveID()
	out := make([]CanvasListing, 0, len(r.index.Canvases))
	for _, c := range r.index.Canvases {
		out = append(out, CanvasListing{CanvasInfo: *c, IsActive: c.ID == active})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns the index entry for a canvas id
func (r *CanvasRegistry) Get(canvasID string) (*CanvasInfo, bool) {
	c, ok := r.index.Canvases[canvasID]
	if !ok {
		return nil, false
	}
	info := *c
	return &info, true
}

// ActiveID returns the id of the active canvas
func (r *CanvasRegistry) ActiveID() string {
	if r.index.ActiveID == "" {
		return DefaultCanvasID
	}
	return r.index.ActiveID
}

// SetActive switches the active canvas
func (r *CanvasRegistry) SetActive(canvasID string) error {
	if _, ok := r.index.Canvases[canvasID]; !ok {
		return errors.NewCanvasNotFound(canvasID)
	}
	r.index.ActiveID = canvasID
	return r.save()
}

// Create registers a new canvas and makes it active. The id is the
// slugified name plus a time-based suffix.
func (r *CanvasRegistry) Create(name string) (string, error) {
	now := time.Now()
	canvasID := slugify(name) + "_" + now.Format("150405")
	r.index.Canvases[canvasID] = &CanvasInfo{
		ID:           canvasID,
		Name:         name,
		CreatedAt:    now,
		LastModified: now,
	}
	r.index.ActiveID = canvasID
	if err := r.save(); err != nil {
		return "", err
	}
	r.logger.Info("Created canvas",
		zap.String("canvas_id", canvasID),
		zap.String("name", name),
	)
	return canvasID, nil
}

// Delete removes a canvas from the index and then removes its storage
// directory. The default canvas is protected. The two steps are not
// guarded by a transaction: a failure after the index save leaves an
// orphaned directory, which is logged and surfaced but not rolled back.
func (r *CanvasRegistry) Delete(canvasID string) error {
	if canvasID == DefaultCanvasID {
		return errors.NewProtectedCanvas(canvasID)
	}
	if _, ok := r.index.Canvases[canvasID]; !ok {
		return errors.NewCanvasNotFound(canvasID)
	}

	delete(r.index.Canvases, canvasID)
	if r.index.ActiveID == canvasID {
		r.index.ActiveID = DefaultCanvasID
	}
	if err := r.save(); err != nil {
		return err
	}

	if err := r.store.RemoveCanvasDir(canvasID); err != nil {
		r.logger.Error("Canvas directory removal failed after index update",
			zap.String("canvas_id", canvasID),
			zap.Error(err),
		)
		return err
	}
	r.logger.Info("Deleted canvas", zap.String("canvas_id", canvasID))
	return nil
}

// Touch updates a canvas's last-modified timestamp and persists the
// index. Unknown ids are ignored.
func (r *CanvasRegistry) Touch(canvasID string) {
	c, ok := r.index.Canvases[canvasID]
	if !ok {
		return
	}
	c.LastModified = time.Now()
	if err := r.save(); err != nil {
		r.logger.Warn("Failed to persist canvas timestamp",
			zap.String("canvas_id", canvasID),
			zap.Error(err),
		)
	}
}

func (r *CanvasRegistry) save() error {
	if err := r.store.Write(r.store.CanvasIndexPath(), r.index); err != nil {
		r.logger.Error("Failed to save canvas index", zap.Error(err))
		return err
	}
	return nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "_")
	if slug == "" {
		slug = "canvas"
	}
	return slug
}
