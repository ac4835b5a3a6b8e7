package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"nexus/backend/internal/bridge"
	"nexus/backend/internal/scraper"
	"nexus/backend/internal/storage"
	"nexus/backend/internal/weaver"
	"nexus/backend/pkg/errors"
)

func newService(t *testing.T) (*Service, *weaver.Weaver) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	w := weaver.New(store)
	return New(w, bridge.New(w, nil), scraper.New(2*time.Second)), w
}

func TestIngestText_PlainText(t *testing.T) {
	s, w := newService(t)

	result, err := s.IngestText(context.Background(), "A note about consensus algorithms", "", "")
	if err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}

	node, ok := w.Graph().Node(result.NodeID)
	if !ok {
		t.Fatal("Ingested node must exist in the graph")
	}
	if node.Content != "A note about consensus algorithms" {
		t.Errorf("Content lost: %q", node.Content)
	}
	// Without a collaborator the title falls back to a timestamped note
	if !strings.HasPrefix(node.Title, "Text Note ") {
		t.Errorf("Expected timestamped fallback title, got %q", node.Title)
	}
	if node.Module != "General" || node.MainTopic != "Uncategorized" {
		t.Errorf("Expected default classification, got %s/%s", node.MainTopic, node.Module)
	}
	if result.LinkedEdges != 0 {
		t.Errorf("No collaborator must mean no auto-links, got %d", result.LinkedEdges)
	}
}

func TestIngestText_ClassificationOverride(t *testing.T) {
	s, w := newService(t)

	result, err := s.IngestText(context.Background(), "payment gateway notes", "Payments", "Engineering")
	if err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}
	node, _ := w.Graph().Node(result.NodeID)
	if node.Module != "Payments" || node.MainTopic != "Engineering" {
		t.Errorf("Explicit classification must win, got %s/%s", node.MainTopic, node.Module)
	}
}

func TestIngestText_URLScraped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head>
			<meta property="og:title" content="Scraped Article">
			<meta property="og:description" content="An article about things">
			<meta property="og:image" content="https://example.com/t.png">
			</head><body><p>Body text of the article.</p></body></html>`))
	}))
	defer srv.Close()

	s, w := newService(t)
	result, err := s.IngestText(context.Background(), srv.URL, "", "")
	if err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}

	node, _ := w.Graph().Node(result.NodeID)
	if node.Title != "Scraped Article" {
		t.Errorf("Scraped title must be authoritative, got %q", node.Title)
	}
	if node.Summary != "An article about things" {
		t.Errorf("Scraped description must fill the summary, got %q", node.Summary)
	}
	if node.Thumbnail != "https://example.com/t.png" {
		t.Errorf("Thumbnail lost: %q", node.Thumbnail)
	}
	if !strings.HasPrefix(node.Content, "Source: "+srv.URL) {
		t.Errorf("Content must carry the source URL:\n%s", node.Content)
	}
	if !strings.Contains(node.Content, "Body text of the article.") {
		t.Errorf("Scraped text missing:\n%s", node.Content)
	}
	if !strings.HasPrefix(result.NodeID, "SCRAPED_ARTICLE_") {
		t.Errorf("Node id must derive from the title, got %q", result.NodeID)
	}
}

func TestIngestText_ScrapeFailureStillIngests(t *testing.T) {
	s, w := newService(t)

	result, err := s.IngestText(context.Background(), "http://127.0.0.1:1/unreachable", "", "")
	if err != nil {
		t.Fatalf("A failed scrape must still produce a node: %v", err)
	}
	node, _ := w.Graph().Node(result.NodeID)
	if !strings.Contains(node.Content, "(Scraping Failed:") {
		t.Errorf("Content must carry the failure note:\n%s", node.Content)
	}
	if !strings.HasPrefix(node.Content, "Source: http://127.0.0.1:1/unreachable") {
		t.Errorf("Content must carry the source URL:\n%s", node.Content)
	}
}

func TestIngestDocument_FilenameID(t *testing.T) {
	s, w := newService(t)

	result, err := s.IngestDocument(context.Background(), "notes.txt", "plain content", "", "")
	if err != nil {
		t.Fatalf("IngestDocument failed: %v", err)
	}
	if result.NodeID != "notes.txt" {
		t.Errorf("Plain filename must be the node id, got %q", result.NodeID)
	}
	if _, ok := w.Graph().Node("notes.txt"); !ok {
		t.Error("Node must exist under the filename id")
	}

	// Dashed basenames normalize to their uppercase stem
	result, err = s.IngestDocument(context.Background(), "srs-pay-02.md", "spec content", "", "")
	if err != nil {
		t.Fatalf("IngestDocument failed: %v", err)
	}
	if result.NodeID != "SRS-PAY-02" {
		t.Errorf("Expected uppercase stem id, got %q", result.NodeID)
	}
}

func TestAnalyzeNode_Validation(t *testing.T) {
	s, w := newService(t)

	if _, err := s.AnalyzeNode(context.Background(), "missing"); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found, got %v", err)
	}

	w.AddDocumentNode("EMPTY", "", nil)
	if _, err := s.AnalyzeNode(context.Background(), "EMPTY"); err == nil {
		t.Error("Analyzing a node without content must fail")
	}
}

func TestAnalyzeNode_AppliesFallbackMetadata(t *testing.T) {
	s, w := newService(t)
	w.AddDocumentNode("DOC", "some content", map[string]interface{}{"title": "Before"})

	node, err := s.AnalyzeNode(context.Background(), "DOC")
	if err != nil {
		t.Fatalf("AnalyzeNode failed: %v", err)
	}
	// The fallback extraction overwrites with its markers
	if node.Title != "Unknown Title" || node.Summary != "LLM Unavailable" {
		t.Errorf("Fallback metadata not applied: %+v", node)
	}
}

func TestExpandNode_Validation(t *testing.T) {
	s, w := newService(t)
	w.AddDocumentNode("DOC", "content", nil)

	if _, err := s.ExpandNode(context.Background(), "missing", "down"); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found, got %v", err)
	}
	if _, err := s.ExpandNode(context.Background(), "DOC", "sideways"); err == nil {
		t.Error("Unknown direction must fail")
	}

	// No collaborator means no proposals in either direction
	created, err := s.ExpandNode(context.Background(), "DOC", "down")
	if err != nil {
		t.Fatalf("ExpandNode failed: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("Expected no created nodes, got %v", created)
	}
	created, err = s.ExpandNode(context.Background(), "DOC", "up")
	if err != nil {
		t.Fatalf("ExpandNode failed: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("Expected no created nodes, got %v", created)
	}
}

func TestRewriteNode_RequiresCollaborator(t *testing.T) {
	s, w := newService(t)
	w.AddDocumentNode("DOC", "content", nil)

	if _, _, err := s.RewriteNode(context.Background(), "DOC"); err == nil {
		t.Error("Rewrite without a collaborator must fail")
	}
	if _, _, err := s.RewriteNode(context.Background(), "missing"); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found, got %v", err)
	}
}

func TestSuggestEdge(t *testing.T) {
	s, w := newService(t)
	w.AddDocumentNode("A", "a", nil)
	w.AddDocumentNode("B", "b", nil)

	justification, err := s.SuggestEdge(context.Background(), "A", "B", "")
	if err != nil {
		t.Fatalf("SuggestEdge failed: %v", err)
	}
	if justification != "Linked" {
		t.Errorf("Expected fallback justification, got %q", justification)
	}

	if _, err := s.SuggestEdge(context.Background(), "A", "missing", ""); !errors.IsNotFound(err) {
		t.Errorf("Expected not-found, got %v", err)
	}
}

func TestMakeNodeID(t *testing.T) {
	idPattern := regexp.MustCompile(`^[A-Z0-9_.-]+_[0-9a-f]{4}$`)

	id := makeNodeID("Payment Gateway Timeout Analysis", 20)
	if !strings.HasPrefix(id, "PAYMENT_GATEWAY_TIME_") {
		t.Errorf("Expected truncated upper-snake prefix, got %q", id)
	}
	if !idPattern.MatchString(id) {
		t.Errorf("Unexpected id shape: %q", id)
	}

	if id := makeNodeID("", 20); !strings.HasPrefix(id, "NOTE_") {
		t.Errorf("Empty title must fall back to NOTE, got %q", id)
	}

	// Distinct calls produce distinct ids
	if makeNodeID("Same", 20) == makeNodeID("Same", 20) {
		t.Error("Expected unique suffixes")
	}
}
