package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event represents a Server-Sent Event
type Event struct {
	ID      string
	Type    string
	Data    interface{}
	Retry   int
	Comment string
}

// Client represents an SSE client connection
type Client struct {
	ID       string
	Channel  chan Event
	Response http.ResponseWriter
	Request  *http.Request
	Context  context.Context
	Cancel   context.CancelFunc
}

// Server fans events out to every connected client
type Server struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	logger     interface {
		Debug(string, ...any)
		Error(string, error, ...any)
	}
}

// NewServer creates a new SSE server
func NewServer(logger interface {
	Debug(string, ...any)
	Error(string, error, ...any)
}) *Server {
	return &Server{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Start runs the dispatch loop until ctx is cancelled
func (s *Server) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				for id, client := range s.clients {
					client.Cancel()
					close(client.Channel)
					delete(s.clients, id)
				}
				return

			case client := <-s.register:
				s.clients[client.ID] = client
				s.logger.Debug("SSE client registered", "id", client.ID)

			case client := <-s.unregister:
				s.drop(client)

			case event := <-s.broadcast:
				for _, client := range s.clients {
					select {
					case client.Channel <- event:
					default:
						// slow client
						s.drop(client)
					}
				}
			}
		}
	}()
}

// drop runs on the dispatch loop
func (s *Server) drop(client *Client) {
	if _, ok := s.clients[client.ID]; !ok {
		return
	}
	delete(s.clients, client.ID)
	client.Cancel()
	close(client.Channel)
	s.logger.Debug("SSE client unregistered", "id", client.ID)
}

// ServeHTTP subscribes the caller to broadcast events
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribers stay connected far longer than the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setHeaders(w)

	ctx, cancel := context.WithCancel(r.Context())
	client := &Client{
		ID:       generateClientID(),
		Channel:  make(chan Event, 100),
		Response: w,
		Request:  r,
		Context:  ctx,
		Cancel:   cancel,
	}

	select {
	case s.register <- client:
	case <-s.done:
		cancel()
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}

	defer func() {
		select {
		case s.unregister <- client:
		case <-s.done:
		}
		cancel()
	}()

	if err := s.writeEvent(w, flusher, Event{
		Type: "connected",
		Data: map[string]string{"id": client.ID},
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-client.Channel:
			if !ok {
				return
			}
			if err := s.writeEvent(w, flusher, event); err != nil {
				s.logger.Error("failed to write SSE event", err, "client", client.ID)
				return
			}
		}
	}
}

// Broadcast queues an event for every client. Events are dropped when the
// queue is full.
func (s *Server) Broadcast(event Event) {
	select {
	case s.broadcast <- event:
	default:
		s.logger.Debug("broadcast queue full, dropping event", "type", event.Type)
	}
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no") // Disable Nginx buffering
}

// writeEvent writes an event to the response writer
func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, event Event) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return err
		}
	}

	if event.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
			return err
		}
	}

	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return err
		}
	}

	if event.Comment != "" {
		if _, err := fmt.Fprintf(w, ": %s\n", event.Comment); err != nil {
			return err
		}
	}

	if event.Data != nil {
		var dataStr string
		switch v := event.Data.(type) {
		case string:
			dataStr = v
		case []byte:
			dataStr = string(v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			dataStr = string(data)
		}

		// Split data by newlines for proper SSE format
		for _, line := range strings.Split(strings.TrimSuffix(dataStr, "\n"), "\n") {
			if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
				return err
			}
		}
	}

	if _, err := fmt.Fprintf(w, "\n"); err != nil {
		return err
	}

	flusher.Flush()
	return nil
}

func generateClientID() string {
	return "client-" + uuid.NewString()
}

// StreamWriter writes events to a single request's response
type StreamWriter struct {
	client *Client
	server *Server
}

// NewStreamWriter creates a new stream writer for a client
func (s *Server) NewStreamWriter(w http.ResponseWriter, r *http.Request) (*StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("SSE not supported")
	}

	setHeaders(w)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	client := &Client{
		ID:       generateClientID(),
		Response: w,
		Request:  r,
		Context:  ctx,
		Cancel:   cancel,
	}

	return &StreamWriter{
		client: client,
		server: s,
	}, nil
}

// ID returns the stream's client id
func (sw *StreamWriter) ID() string {
	return sw.client.ID
}

// SendEvent sends an event through the stream writer
func (sw *StreamWriter) SendEvent(eventType string, data interface{}) error {
	if err := sw.client.Context.Err(); err != nil {
		return err
	}

	flusher, ok := sw.client.Response.(http.Flusher)
	if !ok {
		return fmt.Errorf("response does not support flushing")
	}

	return sw.server.writeEvent(sw.client.Response, flusher, Event{
		Type: eventType,
		Data: data,
	})
}

// SendJSON sends JSON data as an event
func (sw *StreamWriter) SendJSON(eventType string, v interface{}) error {
	return sw.SendEvent(eventType, v)
}

// SendError sends an error message
func (sw *StreamWriter) SendError(err error) error {
	return sw.SendEvent("error", map[string]string{"error": err.Error()})
}

// Close closes the stream writer
func (sw *StreamWriter) Close() {
	sw.client.Cancel()
}
