// Package liveview serves the resource tree to a browser and forwards clicks
// and operator actions to the console.
package liveview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/timzifer/tsconsole/console"
	"github.com/timzifer/tsconsole/nodes"
	"github.com/timzifer/tsconsole/remote"
)

// Console is the part of console.Console the live view drives.
type Console interface {
	Tree(ctx context.Context) (nodes.View, error)
	Revision() uint64
	Subscribe() (<-chan uint64, func())
	Click(ctx context.Context, key string) error
	Action(ctx context.Context, key, name string, values url.Values) error
	Actions(key string) []string
	DownloadConfiguration(ctx context.Context) ([]byte, error)
	UploadConfiguration(ctx context.Context, archive []byte) error
}

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxFormBytes = 1 << 20

	// maxArchiveBytes bounds uploaded configuration backups.
	maxArchiveBytes = 64 << 20
	archiveName     = "configuration.zip"
)

// Server is the embedded live view.
type Server struct {
	listen   string
	console  Console
	logger   zerolog.Logger
	metrics  http.Handler
	upgrader websocket.Upgrader
	handler  http.Handler

	addr chan string
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes handler on /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

// New builds a live view listening on listen once served.
func New(listen string, c Console, opts ...Option) *Server {
	s := &Server{
		listen:  listen,
		console: c,
		logger:  zerolog.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: writeWait,
		},
		addr: make(chan string, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler of the live view.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Get("/tree", s.handleTree)
		r.Get("/events", s.handleEvents)
		r.Post("/nodes/{key}/toggle", s.handleToggle)
		r.Get("/nodes/{key}/actions", s.handleListActions)
		r.Post("/nodes/{key}/actions/{action}", s.handleAction)
		r.Get("/"+archiveName, s.handleDownloadConfiguration)
		r.Post("/"+archiveName, s.handleUploadConfiguration)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// Serve implements suture.Service. It listens until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("live view listen %s: %w", s.listen, err)
	}
	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: writeWait}
	select {
	case s.addr <- ln.Addr().String():
	default:
	}
	s.logger.Info().Str("listen", ln.Addr().String()).Msg("live view started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("shutdown live view")
	}
	return ctx.Err()
}

// Addr returns the address the server listens on once Serve bound it.
func (s *Server) Addr() <-chan string {
	return s.addr
}

func (s *Server) String() string {
	return "liveview"
}

type treeResponse struct {
	Revision uint64     `json:"revision"`
	Tree     nodes.View `json:"tree"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type revisionMessage struct {
	Revision uint64 `json:"revision"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, nil); err != nil {
		s.logger.Error().Err(err).Msg("render live view page")
	}
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	rev := s.console.Revision()
	tree, err := s.console.Tree(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, treeResponse{Revision: rev, Tree: tree})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.console.Click(r.Context(), key); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, revisionMessage{Revision: s.console.Revision()})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	actions := s.console.Actions(chi.URLParam(r, "key"))
	if actions == nil {
		actions = []string{}
	}
	s.writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	name := chi.URLParam(r, "action")
	values, err := requestValues(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.console.Action(r.Context(), key, name, values); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Str("action", name).Msg("action rejected")
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, revisionMessage{Revision: s.console.Revision()})
}

func (s *Server) handleDownloadConfiguration(w http.ResponseWriter, r *http.Request) {
	archive, err := s.console.DownloadConfiguration(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": archiveName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	if _, err := w.Write(archive); err != nil {
		s.logger.Debug().Err(err).Msg("send configuration archive")
	}
}

// handleUploadConfiguration accepts the archive as the raw request body, as
// the server itself does, or as the "file" field of a multipart form.
func (s *Server) handleUploadConfiguration(w http.ResponseWriter, r *http.Request) {
	archive, err := requestArchive(w, r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.console.UploadConfiguration(r.Context(), archive); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, revisionMessage{Revision: s.console.Revision()})
}

func requestArchive(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, maxArchiveBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		archive, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		return archive, nil
	}
	r.Body = body
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("archive file missing: %w", err)
	}
	defer file.Close()
	archive, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return archive, nil
}

// requestValues reads action values from a JSON object or a form body.
func requestValues(r *http.Request) (url.Values, error) {
	defer r.Body.Close()
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
		return r.Form, nil
	}
	var raw map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxFormBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	values := url.Values{}
	for name, v := range raw {
		switch typed := v.(type) {
		case []any:
			for _, item := range typed {
				values.Add(name, jsonText(item))
			}
		default:
			values.Set(name, jsonText(typed))
		}
	}
	return values, nil
}

func jsonText(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	var apiErr *remote.APIError
	switch {
	case errors.Is(err, nodes.ErrUnknownNode), errors.Is(err, console.ErrUnknownAction):
		status = http.StatusNotFound
	case errors.Is(err, console.ErrInvalidValue):
		status = http.StatusBadRequest
	case errors.Is(err, remote.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		message = apiErr.Message
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode live view response")
	}
}

// handleEvents pushes the tree revision to the browser whenever it changes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.console.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(rev uint64) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(revisionMessage{Revision: rev}) == nil
	}
	if !send(s.console.Revision()) {
		return
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case rev := <-updates:
			if !send(rev) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
