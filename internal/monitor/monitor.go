package monitor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/shmem/internal/memory"
)

// DefaultInterval is how often the layout is sampled.
const DefaultInterval = 250 * time.Millisecond

// Server streams the values of a layout to websocket clients and applies
// their writes.
//
// Each connection gets a full frame on connect and another whenever any
// value changed since the last frame sent on that connection.
type Server struct {
	layout   *memory.Layout
	interval time.Duration
	readOnly bool
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients int
}

// Option configures a Server.
type Option func(*Server)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithReadOnly rejects every write request.
func WithReadOnly() Option {
	return func(s *Server) { s.readOnly = true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a monitor for layout.
func New(layout *memory.Layout, opts ...Option) *Server {
	s := &Server{
		layout:   layout,
		interval: DefaultInterval,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "monitor")
	return s
}

// Handler returns the HTTP handler; the websocket endpoint is /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConn)
	mux.HandleFunc("/values", s.handleValues)
	return mux
}

// Clients returns the number of open websocket connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// handleValues serves one JSON snapshot for plain HTTP polling.
func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	values, err := s.layout.Values()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(values)
}

func (s *Server) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.clients++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.clients--
		s.mu.Unlock()
	}()

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Debug("client connected")

	// gorilla/websocket allows one concurrent writer.
	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readLoop(conn, send, logger)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		seq  int64
		last map[string]any
	)
	for {
		values, err := s.layout.Values()
		if err != nil {
			logger.Warn("reading layout failed", "error", err)
			return
		}
		if last == nil || !reflect.DeepEqual(values, last) {
			seq++
			if err := send(&ValuesS2C{Type: TypeValues, Seq: seq, Values: values}); err != nil {
				logger.Debug("client gone", "error", err)
				return
			}
			last = values
		}

		select {
		case <-done:
			logger.Debug("client disconnected")
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, send func(any) error, logger *slog.Logger) {
	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Debug("read failed", "error", err)
			}
			return
		}

		var msg WriteC2S
		if err := json.Unmarshal(buf, &msg); err != nil || msg.Type != TypeWrite {
			if err := send(&ReplyS2C{Type: TypeError, Message: "expected a write message"}); err != nil {
				return
			}
			continue
		}

		reply := ReplyS2C{Type: TypeAck, Name: msg.Name}
		if err := s.apply(msg); err != nil {
			reply.Type = TypeError
			reply.Message = err.Error()
		} else {
			logger.Info("variable written", "name", msg.Name)
		}
		if err := send(&reply); err != nil {
			return
		}
	}
}

func (s *Server) apply(msg WriteC2S) error {
	if s.readOnly {
		return errors.New("monitor is read-only")
	}
	value, err := decodeValue(msg.Value)
	if err != nil {
		return err
	}
	return s.layout.Write(msg.Name, value)
}
