package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"nexus/backend/pkg/errors"
	"nexus/backend/pkg/logger"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// maxContentChars limits context window usage downstream
	maxContentChars = 50000
)

// Page is the extracted representation of a webpage
type Page struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	Content     string `json:"content"`
}

// Scraper fetches webpages and extracts title, description, thumbnail
// and readable text content
type Scraper struct {
	client *http.Client
	logger *zap.Logger
}

// New creates a scraper with the given request timeout
func New(timeout time.Duration) *Scraper {
	return &Scraper{
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("scraper"),
	}
}

// Scrape fetches a URL and extracts its metadata and text. Failures
// are typed retrieval errors; the caller decides how to degrade.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.NewRetrievalFailed(pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("Scraping failed", zap.String("url", pageURL), zap.Error(err))
		return nil, errors.NewRetrievalFailed(pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %d", resp.StatusCode)
		s.logger.Error("Scraping failed", zap.String("url", pageURL), zap.Error(err))
		return nil, errors.NewRetrievalFailed(pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4*maxContentChars))
	if err != nil {
		return nil, errors.NewRetrievalFailed(pageURL, err)
	}

	page := Extract(doc)
	if page.Title == "" {
		page.Title = pageURL
	}

	s.logger.Info("Scraped webpage",
		zap.String("url", pageURL),
		zap.String("title", page.Title),
		zap.Int("content_length", len(page.Content)),
	)
	return page, nil
}

// Extract pulls metadata and readable text out of a parsed document.
// OpenGraph tags win over plain HTML equivalents.
func Extract(doc *goquery.Document) *Page {
	page := &Page{}

	page.Title = metaProperty(doc, "og:title")
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	page.Description = metaProperty(doc, "og:description")
	if page.Description == "" {
		page.Description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	}

	page.Thumbnail = metaProperty(doc, "og:image")

	// Chrome and scripting elements carry no readable content
	doc.Find("script, style, nav, footer, header").Remove()

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	page.Content = cleanText(text)
	if len(page.Content) > maxContentChars {
		page.Content = page.Content[:maxContentChars]
	}

	return page
}

func metaProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	return strings.TrimSpace(content)
}

// cleanText collapses the whitespace soup left after tag stripping into
// one trimmed line per text fragment
func cleanText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
