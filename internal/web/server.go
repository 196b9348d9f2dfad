package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"imgpress/internal/compressor"
	"imgpress/internal/config"
	"imgpress/internal/hoststats"
	"imgpress/internal/logger"
	"imgpress/internal/metadata"
	"imgpress/internal/statistics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	host       hoststats.HostStats
	stamper    metadata.Stamper
	router     *mux.Router
	httpServer *http.Server
	validate   *validator.Validate
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	batchID        string
	cancel         context.CancelFunc
	currentStats   *statistics.Statistics
	lastOutcomes   []OutcomeView
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	Path    string `json:"path" validate:"required"`
	Quality *int   `json:"quality,omitempty" validate:"omitempty,min=0,max=100"`
	Format  string `json:"format,omitempty"`
}

type BatchRequest struct {
	Paths        []string `json:"paths" validate:"required,min=1,dive,required"`
	Quality      *int     `json:"quality,omitempty" validate:"omitempty,min=0,max=100"`
	Format       string   `json:"format,omitempty"`
	TargetSizeKB *int     `json:"target_size_kb,omitempty" validate:"omitempty,min=1"`
	Recursive    bool     `json:"recursive"`
}

// OutcomeView is the JSON form of a compressor.Outcome.
type OutcomeView struct {
	Index  int                `json:"index"`
	Path   string             `json:"path"`
	OK     bool               `json:"ok"`
	Result *compressor.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	Stage  string             `json:"stage,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func newOutcomeView(o compressor.Outcome) OutcomeView {
	return OutcomeView{
		Index:  o.Index,
		Path:   o.Path,
		OK:     o.OK(),
		Result: o.Result,
		Error:  o.Message(),
		Stage:  compressor.Stage(o.Err),
	}
}

// NewServer wires the HTTP API. stamper may be nil, in which case outputs
// never get metadata carried over.
func NewServer(cfg *config.Config, log *logrus.Logger, host hoststats.HostStats, stamper metadata.Stamper) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		host:      host,
		stamper:   stamper,
		router:    mux.NewRouter(),
		validate:  validator.New(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, no browser origin to trust
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/batch", s.handleBatch).Methods("POST")
	api.HandleFunc("/batch/{id}", s.handleGetBatch).Methods("GET")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the router, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // single compress requests are synchronous
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) newCompressor(stats *statistics.Statistics, opts ...compressor.Option) *compressor.DefaultCompressor {
	base := []compressor.Option{
		compressor.WithStatistics(stats),
		compressor.WithFailureThreshold(s.cfg.Compression.FailureThreshold),
		compressor.WithWorkers(s.cfg.Performance.WorkerThreads),
	}
	if s.cfg.Compression.PreserveMetadata && s.stamper != nil {
		base = append(base, compressor.WithStamper(s.stamper))
	}
	return compressor.NewDefaultCompressor(s.log, s.host, append(base, opts...)...)
}

func (s *Server) quality(q *int) int {
	if q != nil {
		return *q
	}
	return s.cfg.Compression.Quality
}

func (s *Server) format(f string) compressor.Format {
	if f == "" {
		f = s.cfg.Compression.Format
	}
	return compressor.ParseFormat(f)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	batchID := s.batchID
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"batch_id":   batchID,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.WithFileOperation(s.log, req.Path, "compress").Debug("Single compression requested")

	c := s.newCompressor(statistics.NewStatistics())
	res, err := c.CompressSingle(req.Path, s.quality(req.Quality), s.format(req.Format))
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, compressor.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		s.writeJSONStatus(w, status, APIResponse{
			Success: false,
			Error:   err.Error(),
			Data:    map[string]string{"stage": compressor.Stage(err)},
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Image compressed",
		Data:    res,
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.format(req.Format).Supported() {
		s.writeError(w, fmt.Sprintf("Unsupported format %q", req.Format), http.StatusBadRequest)
		return
	}

	recursive := req.Recursive || s.cfg.Compression.Recursive
	paths, err := compressor.CollectImageFiles(req.Paths, s.cfg.Compression.Extensions, recursive)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to collect files: %v", err), http.StatusBadRequest)
		return
	}

	targetSize := req.TargetSizeKB
	if targetSize == nil {
		targetSize = s.cfg.TargetSize()
	}

	batch := compressor.BatchRequest{
		ID:           uuid.NewString(),
		Paths:        paths,
		Quality:      s.quality(req.Quality),
		Format:       s.format(req.Format),
		TargetSizeKB: targetSize,
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Batch already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.batchID = batch.ID
	s.cancel = cancel
	s.currentStats = statistics.NewStatistics()
	s.lastOutcomes = nil
	stats := s.currentStats
	s.operationMutex.Unlock()

	go s.runBatchAsync(ctx, batch, stats)

	s.writeJSONStatus(w, http.StatusAccepted, APIResponse{
		Success: true,
		Message: "Batch started",
		Data: map[string]interface{}{
			"batch_id": batch.ID,
			"files":    len(paths),
		},
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.operationMutex.RLock()
	known := id == s.batchID
	running := s.isRunning
	outcomes := s.lastOutcomes
	s.operationMutex.RUnlock()

	if !known {
		s.writeError(w, "Unknown batch", http.StatusNotFound)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"batch_id": id,
			"running":  running,
			"outcomes": outcomes,
		},
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	running := s.isRunning
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()

	if !running {
		s.writeJSON(w, APIResponse{Success: true, Message: "No batch running"})
		return
	}

	s.broadcastWSMessage("batch_stopping", map[string]interface{}{
		"message": "Batch canceled by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Batch canceled",
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":    stats.GetSummary(),
			"file_types": stats.GetFileTypeBreakdown(),
			"counters":   stats.Snapshot(),
			"errors":     stats.GetErrors(),
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()
	return len(s.wsClients)
}

func (s *Server) runBatchAsync(ctx context.Context, req compressor.BatchRequest, stats *statistics.Statistics) {
	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"batch_id": req.ID,
		"files":    len(req.Paths),
		"format":   req.Format,
		"quality":  req.Quality,
	})

	done := 0
	progress := func(o compressor.Outcome) {
		done++
		s.broadcastWSMessage("batch_progress", map[string]interface{}{
			"batch_id": req.ID,
			"done":     done,
			"total":    len(req.Paths),
			"outcome":  newOutcomeView(o),
		})
	}

	c := s.newCompressor(stats, compressor.WithProgress(progress))
	outcomes := c.CompressBatch(ctx, req)

	views := make([]OutcomeView, len(outcomes))
	for i, o := range outcomes {
		views[i] = newOutcomeView(o)
	}

	s.operationMutex.Lock()
	s.isRunning = false
	s.lastOutcomes = views
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.operationMutex.Unlock()

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"batch_id":   req.ID,
		"statistics": stats.Snapshot(),
	})
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Exclusive lock: a websocket connection allows one writer at a time.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSONStatus(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}
