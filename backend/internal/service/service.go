package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nexus/backend/internal/bridge"
	"nexus/backend/internal/graph"
	"nexus/backend/internal/scraper"
	"nexus/backend/internal/weaver"
	"nexus/backend/pkg/errors"
	"nexus/backend/pkg/logger"
)

// analyzeLinkThreshold gates auto-linking after a manual re-analysis
const analyzeLinkThreshold = 0.6

// Service orchestrates ingestion, expansion and rewriting: it combines
// the graph engine, the collaborator bridge and the scraper into the
// operations the API exposes.
type Service struct {
	weaver  *weaver.Weaver
	bridge  *bridge.Bridge
	scraper *scraper.Scraper
	logger  *zap.Logger
}

// New creates the service
func New(w *weaver.Weaver, b *bridge.Bridge, sc *scraper.Scraper) *Service {
	return &Service{
		weaver:  w,
		bridge:  b,
		scraper: sc,
		logger:  logger.Named("service"),
	}
}

// IngestResult reports a completed ingestion
type IngestResult struct {
	NodeID      string `json:"node_id"`
	LinkedEdges int    `json:"linked_edges"`
}

// IngestText ingests raw text or a URL. URLs are scraped first; a
// scraping failure still produces a node carrying the failure note.
func (s *Service) IngestText(ctx context.Context, content, module, mainTopic string) (*IngestResult, error) {
	content = strings.TrimSpace(content)

	nodeTitle := "Text Note"
	finalContent := content
	scraped := map[string]interface{}{}

	if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
		page, err := s.scraper.Scrape(ctx, content)
		if err != nil {
			s.logger.Error("Web scraping failed", zap.String("url", content), zap.Error(err))
			finalContent = fmt.Sprintf("Source: %s\n\n(Scraping Failed: %v)", content, err)
		} else {
			finalContent = fmt.Sprintf("Source: %s\n\n%s", content, page.Content)
			nodeTitle = page.Title
			scraped["title"] = page.Title
			if page.Description != "" {
				scraped["summary"] = page.Description
			}
			if page.Thumbnail != "" {
				scraped["thumbnail"] = page.Thumbnail
			}
		}
	}

	meta := s.bridge.ExtractMetadata(ctx, finalContent)
	s.applyStructureProposals(meta)

	// The collaborator may refine the summary, but a scraped title is
	// authoritative
	final := map[string]interface{}{
		"title":      meta.Title,
		"summary":    meta.Summary,
		"tags":       meta.Tags,
		"module":     meta.Module,
		"main_topic": meta.MainTopic,
	}
	for k, v := range scraped {
		if k == "summary" && meta.Summary != "" && meta.Summary != "LLM Unavailable" {
			continue
		}
		final[k] = v
	}

	title, _ := final["title"].(string)
	if title == "" || title == "Unknown Title" {
		title = fmt.Sprintf("%s %s", nodeTitle, time.Now().Format("15:04:05"))
		final["title"] = title
	}
	if module != "" && module != "General" {
		final["module"] = module
	}
	if mainTopic != "" && mainTopic != "Uncategorized" {
		final["main_topic"] = mainTopic
	}

	nodeID := makeNodeID(title, 20)
	s.weaver.AddDocumentNode(nodeID, finalContent, final)

	linked := s.autoLink(ctx, nodeID, s.weaver.Settings().ConfidenceThreshold())
	return &IngestResult{NodeID: nodeID, LinkedEdges: linked}, nil
}

// IngestDocument ingests an uploaded text document. The filename is the
// node id; dashed basenames are normalized to their uppercase stem.
func (s *Service) IngestDocument(ctx context.Context, filename, content, module, mainTopic string) (*IngestResult, error) {
	nodeID := filename
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if strings.Contains(base, "-") {
		nodeID = strings.ToUpper(base)
	}

	meta := s.bridge.ExtractMetadata(ctx, content)
	s.applyStructureProposals(meta)

	final := map[string]interface{}{
		"title":      meta.Title,
		"summary":    meta.Summary,
		"tags":       meta.Tags,
		"module":     meta.Module,
		"main_topic": meta.MainTopic,
	}
	if title, _ := final["title"].(string); title == "" || title == "Unknown Title" {
		final["title"] = base
	}
	if module != "" && module != "General" {
		final["module"] = module
	}
	if mainTopic != "" && mainTopic != "Uncategorized" {
		final["main_topic"] = mainTopic
	}

	s.weaver.AddDocumentNode(nodeID, content, final)

	linked := s.autoLink(ctx, nodeID, s.weaver.Settings().ConfidenceThreshold())
	return &IngestResult{NodeID: nodeID, LinkedEdges: linked}, nil
}

// AnalyzeNode re-runs metadata extraction for an existing node and
// applies the result, then attempts auto-linking at a fixed threshold.
func (s *Service) AnalyzeNode(ctx context.Context, nodeID string) (*graph.Node, error) {
	node, ok := s.weaver.Graph().Node(nodeID)
	if !ok {
		return nil, errors.NewNodeNotFound(nodeID)
	}
	if node.Content == "" {
		return nil, fmt.Errorf("node has no content to analyze: %s", nodeID)
	}

	meta := s.bridge.ExtractMetadata(ctx, node.Content)
	s.applyStructureProposals(meta)

	updates := map[string]interface{}{
		"title":      meta.Title,
		"summary":    meta.Summary,
		"tags":       meta.Tags,
		"module":     meta.Module,
		"main_topic": meta.MainTopic,
	}
	if err := s.weaver.UpdateNode(nodeID, updates); err != nil {
		return nil, err
	}

	if linked := s.autoLink(ctx, nodeID, analyzeLinkThreshold); linked > 0 {
		s.logger.Info("Auto-linked node after analysis",
			zap.String("node_id", nodeID),
			zap.Int("edges", linked),
		)
	}

	updated, _ := s.weaver.Graph().Node(nodeID)
	return updated, nil
}

// ExpandNode grows the graph around a node. Direction "down" breaks it
// into MECE sub-components pointing at it; "up" abstracts it into a new
// parent it points at.
func (s *Service) ExpandNode(ctx context.Context, nodeID, direction string) ([]string, error) {
	node, ok := s.weaver.Graph().Node(nodeID)
	if !ok {
		return nil, errors.NewNodeNotFound(nodeID)
	}

	var created []string
	switch direction {
	case "down":
		items := s.bridge.GenerateBreakdown(ctx, node, s.weaver.Settings().MaxSubnodes())
		for _, item := range items {
			newID := makeNodeID(item.Title, 15)
			nodeType := item.NodeType
			if nodeType == "" {
				nodeType = "child"
			}
			s.weaver.AddDocumentNode(newID, item.Content, map[string]interface{}{
				"title":     item.Title,
				"summary":   item.Summary,
				"tags":      item.Tags,
				"node_type": nodeType,
				// Sub-components inherit the parent's classification
				"module":     node.Module,
				"main_topic": node.MainTopic,
			})

			justification := item.Justification
			if justification == "" {
				justification = "Sub-component of parent"
			}
			s.linkQuietly(newID, nodeID, justification, 1.0)
			created = append(created, newID)
		}

	case "up":
		item := s.bridge.GenerateAbstraction(ctx, node)
		if item != nil {
			newID := makeNodeID(item.Title, 15)
			nodeType := item.NodeType
			if nodeType == "" {
				nodeType = "parent"
			}
			s.weaver.AddDocumentNode(newID, item.Content, map[string]interface{}{
				"title":      item.Title,
				"summary":    item.Summary,
				"node_type":  nodeType,
				"module":     "General",
				"main_topic": "Uncategorized",
			})

			justification := item.Justification
			if justification == "" {
				justification = "Abstracted from child"
			}
			s.linkQuietly(nodeID, newID, justification, 1.0)
			created = append(created, newID)
		}

	default:
		return nil, fmt.Errorf("unknown expansion direction: %q", direction)
	}

	return created, nil
}

// RewriteNode revises a node against its neighborhood and applies the
// revision, returning the applied updates and the updated node
func (s *Service) RewriteNode(ctx context.Context, nodeID string) (map[string]interface{}, *graph.Node, error) {
	node, ok := s.weaver.Graph().Node(nodeID)
	if !ok {
		return nil, nil, errors.NewNodeNotFound(nodeID)
	}

	result, err := s.bridge.RewriteNode(ctx, node)
	if err != nil {
		return nil, nil, err
	}

	updates := map[string]interface{}{}
	if result.Summary != "" {
		updates["summary"] = result.Summary
	}
	if result.Content != "" {
		updates["content"] = result.Content
	}
	if result.SuggestedTopic != "" {
		updates["main_topic"] = result.SuggestedTopic
	}
	if result.SuggestedModule != "" {
		updates["module"] = result.SuggestedModule
	}

	if len(updates) > 0 {
		if err := s.weaver.UpdateNode(nodeID, updates); err != nil {
			return nil, nil, err
		}
	}

	updated, _ := s.weaver.Graph().Node(nodeID)
	return updates, updated, nil
}

// SuggestEdge drafts a justification for a potential edge between two
// existing nodes
func (s *Service) SuggestEdge(ctx context.Context, source, target, userHint string) (string, error) {
	sourceNode, ok := s.weaver.Graph().Node(source)
	if !ok {
		return "", errors.NewNodeNotFound(source)
	}
	targetNode, ok := s.weaver.Graph().Node(target)
	if !ok {
		return "", errors.NewNodeNotFound(target)
	}
	return s.bridge.GenerateEdgeJustification(ctx, sourceNode, targetNode, userHint), nil
}

// linkQuietly adds an edge proposed by automation. Rejections are
// logged and dropped, never surfaced.
func (s *Service) linkQuietly(source, target, justification string, confidence float64) {
	if err := s.weaver.AddEdge(source, target, justification, confidence); err != nil {
		s.logger.Debug("Dropped proposed edge",
			zap.String("source", source),
			zap.String("target", target),
			zap.Error(err),
		)
	}
}

// applyStructureProposals feeds collaborator taxonomy proposals into
// the context registry and strips them from the metadata
func (s *Service) applyStructureProposals(meta *bridge.Metadata) {
	if meta.ProposedNewTopic != nil {
		p := meta.ProposedNewTopic
		if err := s.weaver.UpsertStructure(p.Name, "", p.Description); err != nil {
			s.logger.Error("Failed to register proposed topic", zap.String("topic", p.Name), zap.Error(err))
		}
		meta.ProposedNewTopic = nil
	}
	if meta.ProposedNewModule != nil {
		p := meta.ProposedNewModule
		if err := s.weaver.UpsertStructure(p.Topic, p.Name, p.Description); err != nil {
			s.logger.Error("Failed to register proposed module", zap.String("module", p.Name), zap.Error(err))
		}
		meta.ProposedNewModule = nil
	}
}

// autoLink asks the collaborator for connections from a fresh node and
// applies the ones clearing the confidence threshold, capped by the
// max_connections setting. Hierarchy rejections on proposed links are
// dropped silently.
func (s *Service) autoLink(ctx context.Context, nodeID string, threshold float64) int {
	if !s.weaver.Settings().AutoLinkingEnabled() {
		return 0
	}
	node, ok := s.weaver.Graph().Node(nodeID)
	if !ok {
		return 0
	}

	candidates := s.weaver.NodeSummaries(nodeID)
	suggestions := s.bridge.DetectRelationships(ctx, node.Summarize(), candidates)

	maxConnections := s.weaver.Settings().MaxConnections()
	linked := 0
	for _, link := range suggestions {
		if linked >= maxConnections {
			break
		}
		if link.TargetID == "" || link.Justification == "" || link.Confidence < threshold {
			continue
		}
		if err := s.weaver.AddEdge(nodeID, link.TargetID, link.Justification, link.Confidence); err != nil {
			// Proposed links never surface rejections to the user
			s.logger.Debug("Dropped suggested link",
				zap.String("source", nodeID),
				zap.String("target", link.TargetID),
				zap.Error(err),
			)
			continue
		}
		linked++
	}
	return linked
}

// makeNodeID derives a readable id from a title plus a short random
// suffix to keep ids unique
func makeNodeID(title string, baseLen int) string {
	base := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
	if base == "" {
		base = "NOTE"
	}
	if len(base) > baseLen {
		base = base[:baseLen]
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
	return base + "_" + suffix
}
