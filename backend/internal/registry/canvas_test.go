package registry

import (
	"os"
	"testing"

	"nexus/backend/pkg/errors"
)

func TestCanvasRegistry_DefaultAlwaysExists(t *testing.T) {
	store := testStore(t)
	r := LoadCanvasRegistry(store)

	if r.ActiveID() != DefaultCanvasID {
		t.Errorf("Expected default active canvas, got %q", r.ActiveID())
	}
	if _, ok := r.Get(DefaultCanvasID); !ok {
		t.Error("Default canvas must exist on first access")
	}
	if !store.Exists(store.CanvasIndexPath()) {
		t.Error("Canvas index must be persisted on first access")
	}
}

func TestCanvasRegistry_CreateActivates(t *testing.T) {
	store := testStore(t)
	r := LoadCanvasRegistry(store)

	id, err := r.Create("Research")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if r.ActiveID() != id {
		t.Errorf("Newly created canvas must be active, got %q", r.ActiveID())
	}
	if got, _ := r.Get(id); got.Name != "Research" {
		t.Errorf("Expected name Research, got %q", got.Name)
	}

	listings := r.List()
	if len(listings) != 2 {
		t.Fatalf("Expected 2 canvases, got %d", len(listings))
	}
	activeCount := 0
	for _, l := range listings {
		if l.IsActive {
			activeCount++
			if l.ID != id {
				t.Errorf("Wrong canvas flagged active: %q", l.ID)
			}
		}
	}
	if activeCount != 1 {
		t.Errorf("Exactly one canvas must be active, got %d", activeCount)
	}
}

func TestCanvasRegistry_DeleteDefaultRejected(t *testing.T) {
	store := testStore(t)
	r := LoadCanvasRegistry(store)

	err := r.Delete(DefaultCanvasID)
	if err == nil {
		t.Fatal("Deleting the default canvas must fail")
	}
	if !errors.IsProtected(err) {
		t.Errorf("Expected protected-resource error, got %v", err)
	}

	// Still rejected when other canvases exist
	if _, err := r.Create("Other"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Delete(DefaultCanvasID); !errors.IsProtected(err) {
		t.Errorf("Expected protected-resource error, got %v", err)
	}
}

func TestCanvasRegistry_DeleteRepointsActive(t *testing.T) {
	store := testStore(t)
	r := LoadCanvasRegistry(store)

	id, err := r.Create("Doomed")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Give the canvas some on-disk state
	if err := store.Write(store.GraphPath(id), map[string]interface{}{"nodes": []string{}, "edges": []string{}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := r.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if r.ActiveID() != DefaultCanvasID {
		t.Errorf("Active must re-point to default, got %q", r.ActiveID())
	}
	if _, ok := r.Get(id); ok {
		t.Error("Deleted canvas must leave the index")
	}
	if _, err := os.Stat(store.CanvasDir(id)); !os.IsNotExist(err) {
		t.Error("Canvas directory must be removed")
	}
}

func TestCanvasRegistry_DeleteUnknown(t *testing.T) {
	store := testStore(t)
	r := LoadCanvasRegistry(store)
	if err := r.Delete("ghost_000000"); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found, got %v", err)
	}
}

func TestCanvasRegistry_SetActiveUnknown(t *testing.T) {
	store := testStore(t)
	r := LoadCanvasRegistry(store)
	if err := r.SetActive("ghost_000000"); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found, got %v", err)
	}
	if r.ActiveID() != DefaultCanvasID {
		t.Error("Failed activation must not change the active canvas")
	}
}

func TestCanvasRegistry_PersistsAcrossLoads(t *testing.T) {
	store := testStore(t)
	r := LoadCanvasRegistry(store)
	id, err := r.Create("Durable")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	reloaded := LoadCanvasRegistry(store)
	if reloaded.ActiveID() != id {
		t.Errorf("Active id lost on reload: %q", reloaded.ActiveID())
	}
	if got, ok := reloaded.Get(id); !ok || got.Name != "Durable" {
		t.Errorf("Canvas entry lost on reload: %+v", got)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Research":        "research",
		"My New Canvas":   "my_new_canvas",
		"  padded  name ": "padded__name",
		"":                "canvas",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, expected %q", in, got, want)
		}
	}
}
