package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"nexus/backend/pkg/errors"
	"nexus/backend/pkg/logger"
)

// Store reads and writes the single-JSON-document registries and graph
// snapshots under one data directory. Every operation opens and closes
// its file; there is no pooling and no background flush.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

// New creates a document store rooted at baseDir, creating the directory
// tree if needed.
func New(baseDir string) (*Store, error) {
	s := &Store{
		baseDir: baseDir,
		logger:  logger.Named("storage"),
	}
	if err := os.MkdirAll(s.CanvasesDir(), 0o755); err != nil {
		return nil, errors.NewPersistenceFailed(s.CanvasesDir(), err)
	}
	return s, nil
}

// BaseDir returns the data directory root
func (s *Store) BaseDir() string { return s.baseDir }

// SettingsPath is the shared settings document
func (s *Store) SettingsPath() string { return filepath.Join(s.baseDir, "nexus_settings.json") }

// CanvasIndexPath is the shared canvas index document
func (s *Store) CanvasIndexPath() string { return filepath.Join(s.baseDir, "canvases.json") }

// CanvasesDir holds one subdirectory per canvas
func (s *Store) CanvasesDir() string { return filepath.Join(s.baseDir, "canvases") }

// CanvasDir is the storage directory for one canvas
func (s *Store) CanvasDir(canvasID string) string {
	return filepath.Join(s.CanvasesDir(), canvasID)
}

// GraphPath is the graph document for one canvas
func (s *Store) GraphPath(canvasID string) string {
	return filepath.Join(s.CanvasDir(canvasID), "graph.json")
}

// ContextPath is the taxonomy document for one canvas
func (s *Store) ContextPath(canvasID string) string {
	return filepath.Join(s.CanvasDir(canvasID), "context.json")
}

// ChatPath is the chat history document for one canvas
func (s *Store) ChatPath(canvasID string) string {
	return filepath.Join(s.CanvasDir(canvasID), "chat.json")
}

// LegacyGraphPath is the pre-canvas single-graph document at the data root
func (s *Store) LegacyGraphPath() string { return filepath.Join(s.baseDir, "nexus_graph.json") }

// LegacyContextPath is the pre-canvas taxonomy document at the data root
func (s *Store) LegacyContextPath() string { return filepath.Join(s.baseDir, "nexus_context.json") }

// Exists reports whether a document is present on disk
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read unmarshals a document into v
func (s *Store) Read(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewPersistenceFailed(path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewPersistenceFailed(path, err)
	}
	return nil
}

// Write marshals v and writes it as an indented document, creating the
// parent directory if needed.
func (s *Store) Write(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewPersistenceFailed(path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewPersistenceFailed(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewPersistenceFailed(path, err)
	}
	return nil
}

// ReadOrDefault loads a document into v, falling back to writing and
// keeping defaultFn's value when the document is missing or unreadable.
// The registry is never left unset in memory: a corrupted document
// degrades to the default with a logged warning.
func (s *Store) ReadOrDefault(path string, v interface{}, defaultFn func() interface{}) error {
	if s.Exists(path) {
		err := s.Read(path, v)
		if err == nil {
			return nil
		}
		s.logger.Warn("Failed to load document, using defaults",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	def := defaultFn()
	data, err := json.Marshal(def)
	if err != nil {
		return errors.NewPersistenceFailed(path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewPersistenceFailed(path, err)
	}
	if err := s.Write(path, def); err != nil {
		// Default still lives in memory; persisting it is best effort.
		s.logger.Warn("Failed to persist default document",
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return nil
}

// MigrateLegacy copies a legacy document into its namespaced location if
// the destination is missing and the legacy document exists. The legacy
// document is left untouched; the copy happens at most once because the
// destination exists afterwards.
func (s *Store) MigrateLegacy(legacyPath, destPath string) bool {
	if s.Exists(destPath) || !s.Exists(legacyPath) {
		return false
	}
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		s.logger.Error("Legacy migration read failed",
			zap.String("path", legacyPath),
			zap.Error(err),
		)
		return false
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		s.logger.Error("Legacy migration mkdir failed",
			zap.String("path", destPath),
			zap.Error(err),
		)
		return false
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		s.logger.Error("Legacy migration write failed",
			zap.String("path", destPath),
			zap.Error(err),
		)
		return false
	}
	s.logger.Info("Migrated legacy document",
		zap.String("from", legacyPath),
		zap.String("to", destPath),
	)
	return true
}

// RemoveCanvasDir deletes a canvas's on-disk storage directory
func (s *Store) RemoveCanvasDir(canvasID string) error {
	dir := s.CanvasDir(canvasID)
	if err := os.RemoveAll(dir); err != nil {
		return errors.NewPersistenceFailed(dir, err)
	}
	return nil
}
