package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nexus/backend/internal/adapter"
	"nexus/backend/internal/bridge"
	"nexus/backend/internal/graph"
	"nexus/backend/internal/scraper"
	"nexus/backend/internal/service"
	"nexus/backend/internal/storage"
	"nexus/backend/internal/weaver"
	"nexus/backend/pkg/config"
	"nexus/backend/pkg/errors"
	"nexus/backend/pkg/logger"
)

const version = "2.0.4"

func main() {
	// Initialize logger
	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Nexus Core API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize dependencies
	store, err := storage.New(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}

	var llm *adapter.LLMAdapter
	if cfg.LLMConfigured() {
		llm = adapter.NewLLMAdapter(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ModelID)
	} else {
		log.Warn("No LLM API key configured, content intelligence runs in fallback mode")
	}

	w := weaver.New(store)
	b := bridge.New(w, llm)
	svc := service.New(w, b, scraper.New(cfg.ScrapeTimeout))

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	app := newApp(w, b, svc, log)
	router := app.newRouter()

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// chatSession is an active in-memory chat session. Sessions are bound
// to the context they were created against and are dropped on canvas
// switches to avoid context mixups.
type chatSession struct {
	SessionID      string               `json:"session_id"`
	CreatedAt      time.Time            `json:"created_at"`
	Config         sessionConfig        `json:"config"`
	ContextData    *bridge.ContextData  `json:"context_data"`
	Messages       []weaver.ChatMessage `json:"messages"`
	DominantModule string               `json:"dominant_module"`
}

type sessionConfig struct {
	SelectedNodes   []string `json:"selected_nodes"`
	DepthMode       string   `json:"depth_mode"`
	ResolvedContext []string `json:"resolved_context"`
}

type app struct {
	weaver  *weaver.Weaver
	bridge  *bridge.Bridge
	service *service.Service
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*chatSession
}

func newApp(w *weaver.Weaver, b *bridge.Bridge, svc *service.Service, log *zap.Logger) *app {
	return &app{
		weaver:   w,
		bridge:   b,
		service:  svc,
		log:      log,
		sessions: make(map[string]*chatSession),
	}
}

func (a *app) clearSessions() {
	a.mu.Lock()
	a.sessions = make(map[string]*chatSession)
	a.mu.Unlock()
}

func (a *app) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(a.log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "Nexus Core Operational", "version": version})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v2")
	{
		api.GET("/health", a.handleHealth)

		api.GET("/canvases", a.handleListCanvases)
		api.POST("/canvases", a.handleCreateCanvas)
		api.POST("/canvases/:canvas_id/activate", a.handleActivateCanvas)
		api.DELETE("/canvases/:canvas_id", a.handleDeleteCanvas)

		api.GET("/graph", a.handleGetGraph)
		api.GET("/context", a.handleGetContext)
		api.GET("/settings", a.handleGetSettings)
		api.POST("/settings", a.handleUpdateSettings)
		api.POST("/save", a.handleSave)

		api.POST("/ingest/text", a.handleIngestText)
		api.POST("/ingest/upload", a.handleIngestUpload)
		api.POST("/ingest/edge", a.handleCreateEdge)

		api.PUT("/edges", a.handleUpdateEdge)
		api.DELETE("/edges", a.handleDeleteEdge)
		api.POST("/edges/suggest", a.handleSuggestEdge)

		api.POST("/nodes/positions", a.handleUpdatePositions)
		api.PUT("/nodes/:node_id", a.handleUpdateNode)
		api.DELETE("/nodes/:node_id", a.handleDeleteNode)
		api.POST("/nodes/:node_id/analyze", a.handleAnalyzeNode)
		api.POST("/nodes/:node_id/expand", a.handleExpandNode)
		api.POST("/nodes/:node_id/rewrite", a.handleRewriteNode)

		api.POST("/chat/context", a.handleChatContext)
		api.POST("/chat/message", a.handleChatMessage)
		api.GET("/chat/history/:session_id", a.handleChatHistory)
	}

	return router
}

func (a *app) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"version":        version,
		"llm_configured": a.bridge.Available(),
		"active_canvas":  a.weaver.ActiveCanvasID(),
		"node_count":     a.weaver.Graph().NodeCount(),
		"edge_count":     a.weaver.Graph().EdgeCount(),
	})
}

// Canvas endpoints

func (a *app) handleListCanvases(c *gin.Context) {
	c.JSON(http.StatusOK, a.weaver.Canvases().List())
}

func (a *app) handleCreateCanvas(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	canvasID, err := a.weaver.CreateCanvas(req.Name)
	if err != nil {
		a.log.Error("Failed to create canvas", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create canvas"})
		return
	}
	// Creation switches the active canvas, so sessions are stale
	a.clearSessions()

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"canvas_id": canvasID,
		"message":   fmt.Sprintf("Canvas '%s' created", req.Name),
	})
}

func (a *app) handleActivateCanvas(c *gin.Context) {
	canvasID := c.Param("canvas_id")
	if err := a.weaver.SwitchCanvas(canvasID); err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Canvas not found"})
			return
		}
		a.log.Error("Failed to switch canvas", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to switch canvas"})
		return
	}
	// Sessions reference the previous canvas's context
	a.clearSessions()

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": fmt.Sprintf("Switched to canvas %s", canvasID)})
}

func (a *app) handleDeleteCanvas(c *gin.Context) {
	canvasID := c.Param("canvas_id")
	if err := a.weaver.DeleteCanvas(canvasID); err != nil {
		switch {
		case errors.IsProtected(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete default canvas"})
		case errors.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Canvas not found"})
		default:
			a.log.Error("Failed to delete canvas", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete canvas"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Canvas deleted"})
}

// Graph endpoints

func (a *app) handleGetGraph(c *gin.Context) {
	c.JSON(http.StatusOK, a.weaver.Graph().Document())
}

func (a *app) handleGetContext(c *gin.Context) {
	c.JSON(http.StatusOK, a.weaver.Context().Taxonomy())
}

func (a *app) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.weaver.Settings().Values())
}

func (a *app) handleUpdateSettings(c *gin.Context) {
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.weaver.Settings().Update(updates); err != nil {
		a.log.Error("Failed to update settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  "Settings updated",
		"settings": a.weaver.Settings().Values(),
	})
}

func (a *app) handleSave(c *gin.Context) {
	status := a.weaver.SaveAll()
	if len(status.Errors) > 0 {
		c.JSON(http.StatusOK, gin.H{
			"status":      "partial",
			"message":     fmt.Sprintf("Saved: %s, Errors: %s", strings.Join(status.Saved, ", "), strings.Join(status.Errors, ", ")),
			"save_status": status,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message":     fmt.Sprintf("All data saved successfully: %s", strings.Join(status.Saved, ", ")),
		"save_status": status,
	})
}

// Ingestion endpoints

func (a *app) handleIngestText(c *gin.Context) {
	var req struct {
		Content   string `json:"content" binding:"required"`
		Module    string `json:"module"`
		MainTopic string `json:"main_topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.service.IngestText(c.Request.Context(), req.Content, req.Module, req.MainTopic)
	if err != nil {
		a.log.Error("Failed to ingest text", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "node_id": result.NodeID, "message": "Content ingested"})
}

func (a *app) handleIngestUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file. Ensure it is a valid text file."})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file. Ensure it is a valid text file."})
		return
	}

	result, err := a.service.IngestDocument(
		c.Request.Context(),
		fileHeader.Filename,
		string(content),
		c.PostForm("module"),
		c.PostForm("main_topic"),
	)
	if err != nil {
		a.log.Error("Failed to ingest document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"node_id": result.NodeID,
		"message": fmt.Sprintf("Ingested %s", fileHeader.Filename),
	})
}

// Edge endpoints

func (a *app) handleCreateEdge(c *gin.Context) {
	var req struct {
		Source        string `json:"source" binding:"required"`
		Target        string `json:"target" binding:"required"`
		Justification string `json:"justification" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.weaver.AddEdge(req.Source, req.Target, req.Justification, 1.0); err != nil {
		if errors.IsNotFound(err) || errors.IsHierarchyViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a.log.Error("Failed to create edge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create edge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Edge created"})
}

func (a *app) handleUpdateEdge(c *gin.Context) {
	source := c.Query("source")
	target := c.Query("target")
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.weaver.UpdateEdge(source, target, updates); err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Edge not found"})
			return
		}
		a.log.Error("Failed to update edge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update edge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Edge updated"})
}

func (a *app) handleDeleteEdge(c *gin.Context) {
	source := c.Query("source")
	target := c.Query("target")

	if err := a.weaver.DeleteEdge(source, target); err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Edge not found"})
			return
		}
		a.log.Error("Failed to delete edge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete edge"})
		return
	}
	a.log.Info("Deleted edge", zap.String("source", source), zap.String("target", target))
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Edge deleted"})
}

func (a *app) handleSuggestEdge(c *gin.Context) {
	var req struct {
		Source   string `json:"source" binding:"required"`
		Target   string `json:"target" binding:"required"`
		UserHint string `json:"user_hint"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	justification, err := a.service.SuggestEdge(c.Request.Context(), req.Source, req.Target, req.UserHint)
	if err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		a.log.Error("Failed to suggest justification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to suggest justification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "justification": justification})
}

// Node endpoints

func (a *app) handleUpdatePositions(c *gin.Context) {
	var positions map[string]graph.Position
	if err := c.ShouldBindJSON(&positions); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !a.weaver.UpdateNodePositions(positions) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to update positions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Positions updated"})
}

func (a *app) handleUpdateNode(c *gin.Context) {
	nodeID := c.Param("node_id")
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.weaver.UpdateNode(nodeID, updates); err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
			return
		}
		a.log.Error("Failed to update node", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update node"})
		return
	}

	node, _ := a.weaver.Graph().Node(nodeID)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Node updated", "node": node})
}

func (a *app) handleDeleteNode(c *gin.Context) {
	nodeID := c.Param("node_id")
	if err := a.weaver.DeleteNode(nodeID); err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
			return
		}
		a.log.Error("Failed to delete node", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete node"})
		return
	}
	a.log.Info("Deleted node", zap.String("node_id", nodeID))
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Node deleted"})
}

func (a *app) handleAnalyzeNode(c *gin.Context) {
	nodeID := c.Param("node_id")
	node, err := a.service.AnalyzeNode(c.Request.Context(), nodeID)
	if err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Metadata updated", "node": node})
}

func (a *app) handleExpandNode(c *gin.Context) {
	nodeID := c.Param("node_id")
	var req struct {
		Direction string `json:"direction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Direction == "" {
		req.Direction = "down"
	}

	created, err := a.service.ExpandNode(c.Request.Context(), nodeID, req.Direction)
	if err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if created == nil {
		created = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "created_nodes": created})
}

func (a *app) handleRewriteNode(c *gin.Context) {
	nodeID := c.Param("node_id")
	updates, node, err := a.service.RewriteNode(c.Request.Context(), nodeID)
	if err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Node rewritten", "updates": updates, "node": node})
}

// Chat endpoints

func (a *app) handleChatContext(c *gin.Context) {
	var req struct {
		SelectedNodes []string `json:"selected_nodes" binding:"required"`
		DepthMode     string   `json:"depth_mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	depthMap := map[string]int{"F0": 0, "F1": 1, "F2": 2}
	depth := depthMap[req.DepthMode]

	data := a.bridge.CalculateContext(req.SelectedNodes, depth)

	resolved := make([]string, 0, len(data.ContextNodes))
	for _, node := range data.ContextNodes {
		resolved = append(resolved, node.ID)
	}

	session := &chatSession{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now(),
		Config: sessionConfig{
			SelectedNodes:   req.SelectedNodes,
			DepthMode:       req.DepthMode,
			ResolvedContext: resolved,
		},
		ContextData:    data,
		Messages:       []weaver.ChatMessage{},
		DominantModule: data.DominantModule,
	}

	a.mu.Lock()
	a.sessions[session.SessionID] = session
	a.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"session_id":      session.SessionID,
		"context_nodes":   data.ContextNodes,
		"context_edges":   data.ContextEdges,
		"dominant_module": data.DominantModule,
	})
}

func (a *app) handleChatMessage(c *gin.Context) {
	var req struct {
		SessionID  string `json:"session_id" binding:"required"`
		UserPrompt string `json:"user_prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a.mu.Lock()
	session, ok := a.sessions[req.SessionID]
	a.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	userMsg := weaver.ChatMessage{
		ID:        uuid.NewString(),
		Role:      "user",
		Content:   req.UserPrompt,
		Timestamp: time.Now(),
	}

	responseText := a.bridge.GenerateResponse(c.Request.Context(), session.Messages, session.ContextData, req.UserPrompt)

	assistantMsg := weaver.ChatMessage{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Content:   responseText,
		Timestamp: time.Now(),
	}

	a.mu.Lock()
	session.Messages = append(session.Messages, userMsg, assistantMsg)
	messages := append([]weaver.ChatMessage(nil), session.Messages...)
	a.mu.Unlock()

	// Autosave the chat history
	a.weaver.AppendChatRecord(weaver.SessionRecord{
		SessionID: session.SessionID,
		Messages:  messages,
	})

	c.JSON(http.StatusOK, assistantMsg)
}

func (a *app) handleChatHistory(c *gin.Context) {
	sessionID := c.Param("session_id")

	a.mu.Lock()
	session, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
