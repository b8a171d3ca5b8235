package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lotas/tabfeeds/internal/applog"
	"nhooyr.io/websocket"
)

// ErrNotConnected is returned when no extension is connected.
var ErrNotConnected = errors.New("extension not connected")

// DefaultRequestTimeout bounds Request when ctx carries no deadline.
const DefaultRequestTimeout = 10 * time.Second

// Message types sent by the extension.
const (
	TypePageRSS    = "rss.page"
	TypeFeed       = "rss.feed"
	TypeGetAll     = "rss.get"
	TypeTabRemoved = "tab.removed"
	TypeTabUpdated = "tab.updated"
	TypeSubAdd     = "sub.add"
	TypeSubRemove  = "sub.remove"
	TypeIdle       = "idle"
)

// Actions sent to the extension.
const (
	ActionGetHTML  = "getHTML"
	ActionGetTab   = "getTab"
	ActionSetBadge = "setBadge"
	ActionAllRSS   = "rss.all"
)

// IncomingMsg is a message from the extension.
type IncomingMsg struct {
	Type     string          `json:"type"`
	TabID    int             `json:"tabId,omitempty"`
	Tab      json.RawMessage `json:"tab,omitempty"`
	Feeds    json.RawMessage `json:"feeds,omitempty"`
	Feed     json.RawMessage `json:"feed,omitempty"`
	UseCache bool            `json:"useCache,omitempty"`
	HTML     string          `json:"html,omitempty"`
	URL      string          `json:"url,omitempty"`
	Title    string          `json:"title,omitempty"`
	State    string          `json:"state,omitempty"`
	// Command response fields
	ID      string `json:"id,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	Content string `json:"content,omitempty"`
}

// IsReply reports whether the message answers a command sent by Request.
func (m IncomingMsg) IsReply() bool {
	return m.Type == "" && m.ID != ""
}

// BadgePayload is the badge painted by the extension.
type BadgePayload struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// BundlePayload is the reply to rss.get.
type BundlePayload struct {
	PageRSS       []WireFeed `json:"pageRSS"`
	PageRSSHub    []WireFeed `json:"pageRSSHub"`
	WebsiteRSSHub []WireFeed `json:"websiteRSSHub"`
}

// OutgoingMsg is a command to the extension.
type OutgoingMsg struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	TabID  int            `json:"tabId,omitempty"`
	Badge  *BadgePayload  `json:"badge,omitempty"`
	Bundle *BundlePayload `json:"bundle,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Server manages the WebSocket connection to the extension.
type Server struct {
	port    int
	msgs    chan IncomingMsg
	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context

	seq     atomic.Int64
	pmu     sync.Mutex
	pending map[string]chan IncomingMsg
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		msgs:    make(chan IncomingMsg, 64),
		pending: make(map[string]chan IncomingMsg),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of incoming messages from the extension.
// Replies claimed by Request are not delivered here.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send sends a command to the connected extension.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Request sends a command and waits for the reply carrying the same ID.
// A reply with ok=false is returned as an error.
func (s *Server) Request(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	if msg.ID == "" {
		msg.ID = "req-" + strconv.FormatInt(s.seq.Add(1), 10)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}

	ch := make(chan IncomingMsg, 1)
	s.pmu.Lock()
	s.pending[msg.ID] = ch
	s.pmu.Unlock()
	defer func() {
		s.pmu.Lock()
		delete(s.pending, msg.ID)
		s.pmu.Unlock()
	}()

	if err := s.Send(msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, err)
	}

	select {
	case reply := <-ch:
		if reply.OK != nil && !*reply.OK {
			return reply, fmt.Errorf("%s: %s", msg.Action, reply.Error)
		}
		return reply, nil
	case <-ctx.Done():
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ctx.Err())
	}
}

// deliver hands a reply to its waiting Request. It reports false when
// nobody is waiting for msg.ID.
func (s *Server) deliver(msg IncomingMsg) bool {
	s.pmu.Lock()
	ch, ok := s.pending[msg.ID]
	s.pmu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- msg:
	default:
	}
	return true
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Printf("websocket accept: %v", err)
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // page HTML can be large

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			if msg.IsReply() && s.deliver(msg) {
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "tab", msg.TabID)
			select {
			case s.msgs <- msg:
			default:
				applog.Warn("ws.dropped", "type", msg.Type)
			}
		}
	})
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}
