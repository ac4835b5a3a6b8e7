package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"nexus/backend/pkg/errors"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
	<title>Plain Title</title>
	<meta property="og:title" content="OG Title">
	<meta property="og:description" content="OG description of the page">
	<meta property="og:image" content="https://example.com/thumb.png">
	<script>var tracked = true;</script>
	<style>body { color: red; }</style>
</head>
<body>
	<nav>Home | About</nav>
	<header>Site Header</header>
	<article>
		<h1>The   Actual    Article</h1>
		<p>First paragraph of content.</p>
		<p>Second paragraph.</p>
	</article>
	<footer>Copyright 2026</footer>
</body>
</html>`

func TestScrape_ExtractsMetadataAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := New(5*time.Second).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if page.Title != "OG Title" {
		t.Errorf("OpenGraph title must win, got %q", page.Title)
	}
	if page.Description != "OG description of the page" {
		t.Errorf("Unexpected description: %q", page.Description)
	}
	if page.Thumbnail != "https://example.com/thumb.png" {
		t.Errorf("Unexpected thumbnail: %q", page.Thumbnail)
	}

	if !strings.Contains(page.Content, "First paragraph of content.") {
		t.Errorf("Article text missing from content:\n%s", page.Content)
	}
	if strings.Contains(page.Content, "var tracked") || strings.Contains(page.Content, "color: red") {
		t.Errorf("Script/style text must be stripped:\n%s", page.Content)
	}
	if strings.Contains(page.Content, "Site Header") || strings.Contains(page.Content, "Copyright 2026") {
		t.Errorf("Chrome elements must be stripped:\n%s", page.Content)
	}
	if strings.Contains(page.Content, "The   Actual") {
		t.Errorf("Whitespace must be collapsed:\n%s", page.Content)
	}
}

func TestScrape_TitleFallsBackToURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>no title here</body></html>"))
	}))
	defer srv.Close()

	page, err := New(5*time.Second).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if page.Title != srv.URL {
		t.Errorf("Title must fall back to the URL, got %q", page.Title)
	}
}

func TestScrape_HTTPErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(5*time.Second).Scrape(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Expected an error for a 404 response")
	}
	if !errors.IsErrorType(err, errors.ErrorTypeCollaborator) {
		t.Errorf("Expected a typed retrieval error, got %v", err)
	}
}

func TestScrape_UnreachableHost(t *testing.T) {
	_, err := New(500*time.Millisecond).Scrape(context.Background(), "http://127.0.0.1:1/nothing")
	if err == nil {
		t.Fatal("Expected an error for an unreachable host")
	}
}

func TestExtract_PlainTitleWithoutOpenGraph(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><head><title> Spaced Title </title><meta name="description" content="plain desc"></head><body>text</body></html>`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	page := Extract(doc)
	if page.Title != "Spaced Title" {
		t.Errorf("Expected trimmed plain title, got %q", page.Title)
	}
	if page.Description != "plain desc" {
		t.Errorf("Expected meta description fallback, got %q", page.Description)
	}
}
