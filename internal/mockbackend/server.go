// ABOUTME: In-process stand-in for the research backend: REST endpoints plus the progress WebSocket
// ABOUTME: Runs scripted flows and broadcasts their events to every connected client

package mockbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/2389/research-flow/internal/progress"
)

const (
	// ProgressPath is the WebSocket endpoint.
	ProgressPath = "/api/ws/progress"
	// ReportPath is where the finished report is served.
	ReportPath = "/output/synthesis_report.md"

	// DefaultKeepaliveInterval matches the real backend's ping cadence.
	DefaultKeepaliveInterval = 30 * time.Second

	maxUploadSize = 32 << 20
	writeTimeout  = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	Flow              FlowOptions
	KeepaliveInterval time.Duration
	Clock             clockwork.Clock
	Logger            *slog.Logger
}

// Upload is a PDF held by the server.
type Upload struct {
	FileID    string
	Filename  string
	Topic     string
	PageCount int
	Size      int
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) writeJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(v)
}

// Server is the mock research backend.
type Server struct {
	opts     Options
	clock    clockwork.Clock
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	mu      sync.Mutex
	peers   map[*peer]struct{}
	uploads map[string]Upload
	report  string
	started []string
}

// New creates a server. Nothing listens until Handler is mounted.
func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "mockbackend"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[*peer]struct{}),
		uploads: make(map[string]Upload),
	}
}

// Handler routes the backend's endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ProgressPath, s.handleProgress)
	mux.HandleFunc("POST /research/send", s.handleSend)
	mux.HandleFunc("POST /research/upload-pdf", s.handleUpload)
	mux.HandleFunc("POST /research/send-with-pdfs", s.handleSendWithPDFs)
	mux.HandleFunc("GET /research/status", s.handleStatus)
	mux.HandleFunc("GET "+ReportPath, s.handleReport)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	return mux
}

// Broadcast sends e to every connected client. Clients that fail the write
// are dropped.
func (s *Server) Broadcast(e progress.Event) {
	if e.Timestamp == "" {
		e.Timestamp = s.clock.Now().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if err := p.writeJSON(e); err != nil {
			s.logger.Debug("dropping client after failed write", "error", err)
			s.drop(p)
		}
	}
}

// Connections returns the number of connected progress clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// DropConnections closes every progress socket without a close frame, the
// way a crashed backend would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[*peer]struct{})
	s.mu.Unlock()

	for p := range peers {
		_ = p.conn.Close()
	}
}

// Uploads returns the PDFs received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, 0, len(s.uploads))
	for _, u := range s.uploads {
		out = append(out, u)
	}
	return out
}

// Topics returns the topics of the flows started so far, in order.
func (s *Server) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// StartFlow runs the scripted flow for topic in the background.
func (s *Server) StartFlow(topic string) {
	s.mu.Lock()
	s.started = append(s.started, topic)
	s.report = ""
	s.mu.Unlock()

	opts := s.opts.Flow.withDefaults(topic)
	script := Script(topic, opts)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		for _, e := range script {
			if opts.StepDelay > 0 {
				select {
				case <-s.ctx.Done():
					return
				case <-s.clock.After(opts.StepDelay):
				}
			} else if s.ctx.Err() != nil {
				return
			}
			if reportReady(e) {
				s.mu.Lock()
				s.report = opts.Report
				s.mu.Unlock()
			}
			s.Broadcast(e)
		}
		s.logger.Info("flow finished", "topic", topic, "events", len(script))
	}()
}

// Close stops running flows and disconnects every client.
func (s *Server) Close() {
	s.cancel()
	s.runs.Wait()
	s.DropConnections()
}

func (s *Server) drop(p *peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	_ = p.conn.Close()
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	total := len(s.peers)
	s.mu.Unlock()
	s.logger.Debug("progress client connected", "total", total)

	welcome := progress.New(progress.AgentSystem, progress.StatusConnected, "WebSocket connected successfully")
	welcome.Timestamp = "now"
	if err := p.writeJSON(welcome); err != nil {
		s.drop(p)
		return
	}

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(p, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if string(data) != "ping" {
			continue
		}
		pong := progress.New(progress.AgentSystem, progress.StatusPong, "pong").
			WithDetail("connections", s.Connections())
		pong.Timestamp = "now"
		if err := p.writeJSON(pong); err != nil {
			break
		}
	}
	s.drop(p)
}

func (s *Server) keepalive(p *peer, done <-chan struct{}) {
	ticker := s.clock.NewTicker(s.opts.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			ping := progress.New(progress.AgentSystem, progress.StatusPing, "keepalive")
			ping.Timestamp = "now"
			if err := p.writeJSON(ping); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "topic is required")
		return
	}

	s.StartFlow(req.Topic)
	writeJSON(w, http.StatusOK, startResponse(req.Topic, 0))
}

func (s *Server) handleSendWithPDFs(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if strings.TrimSpace(topic) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "topic is required")
		return
	}
	fileIDs := r.URL.Query()["file_ids"]

	s.mu.Lock()
	for _, id := range fileIDs {
		if _, ok := s.uploads[id]; !ok {
			s.mu.Unlock()
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("PDF with file_id %s not found", id))
			return
		}
	}
	s.mu.Unlock()

	s.StartFlow(topic)
	writeJSON(w, http.StatusOK, startResponse(topic, len(fileIDs)))
}

func startResponse(topic string, pdfs int) map[string]string {
	msg := fmt.Sprintf("Research started for '%s'. Connect to %s for real-time updates.", topic, ProgressPath)
	if pdfs > 0 {
		msg = fmt.Sprintf("Research started for '%s' with %d PDF(s).", topic, pdfs)
	}
	return map[string]string{
		"status":      "pending",
		"topic":       topic,
		"result":      "",
		"message":     msg,
		"research_id": uuid.NewString(),
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeDetail(w, http.StatusBadRequest, "Only PDF files are supported")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Error while uploading the PDF: "+err.Error())
		return
	}

	topic := r.FormValue("topic")
	if topic == "" {
		topic = topicFromFilename(header.Filename)
	}
	up := Upload{
		FileID:    uuid.NewString(),
		Filename:  header.Filename,
		Topic:     topic,
		PageCount: countPages(data),
		Size:      len(data),
	}

	s.mu.Lock()
	s.uploads[up.FileID] = up
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "PDF uploaded successfully: " + up.Filename,
		"file_id":    up.FileID,
		"file_path":  "uploads/" + up.FileID + ".pdf",
		"filename":   up.Filename,
		"topic":      up.Topic,
		"page_count": up.PageCount,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_connections": s.Connections(),
		"status":             "operational",
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	report := s.report
	s.mu.Unlock()

	if report == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, report)
}

var pageObject = regexp.MustCompile(`/Type\s*/Page\b`)

// countPages counts page objects in a PDF body. Good enough for fixtures.
func countPages(data []byte) int {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return 0
	}
	return len(pageObject.FindAllIndex(data, -1))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
