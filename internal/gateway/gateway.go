// Package gateway is the WebSocket transport for the relay. Each accepted
// connection gets a Session; its inbound events are handled one at a time
// in arrival order, while a separate goroutine drains its outbound queue.
//
// Inbound events:
//
//	register     {"username"}                           bind identity to this session
//	sendMessage  {"sender","receiver","message","publicKey"?}  run the relay pipeline
//	error        {"message"}                            logged only
//
// Outbound events:
//
//	receiveMessage {"sender","message","hash"?}
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-relay/internal/config"
	"github.com/tbourn/go-chat-relay/internal/presence"
	"github.com/tbourn/go-chat-relay/internal/ratelimit"
	"github.com/tbourn/go-chat-relay/internal/services"
)

// Relayer runs one message through the relay pipeline.
type Relayer interface {
	Relay(ctx context.Context, req services.SendRequest) *services.Outcome
}

// Options tunes sessions.
type Options struct {
	MaxMessageBytes int64
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	EventRPS        float64
	EventBurst      int
	// AllowedOrigins restricts the Origin header on upgrade. Empty allows all.
	AllowedOrigins []string
}

// OptionsFromConfig maps the gateway and CORS configuration onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxMessageBytes: cfg.Gateway.MaxMessageBytes,
		SendBuffer:      cfg.Gateway.SendBuffer,
		WriteWait:       cfg.Gateway.WriteWait,
		PongWait:        cfg.Gateway.PongWait,
		EventRPS:        cfg.Gateway.EventRPS,
		EventBurst:      cfg.Gateway.EventBurst,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
	}
}

func (o *Options) applyDefaults() {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.EventRPS <= 0 {
		o.EventRPS = 20
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 40
	}
}

// Gateway accepts WebSocket connections and dispatches their events.
type Gateway struct {
	registry *presence.Registry
	relay    Relayer
	opts     Options
	upgrader websocket.Upgrader
	limits   *ratelimit.Buckets
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// New constructs a Gateway over registry and relay.
func New(registry *presence.Registry, relay Relayer, opts Options) *Gateway {
	opts.applyDefaults()
	g := &Gateway{
		registry: registry,
		relay:    relay,
		opts:     opts,
		limits:   ratelimit.New(opts.EventRPS, opts.EventBurst),
		log:      log.With().Str("component", "gateway").Logger(),
		sessions: make(map[string]*Session),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return g
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Handle is the Gin handler for the WebSocket route.
func (g *Gateway) Handle(c *gin.Context) {
	g.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(uuid.NewString(), conn, g.opts.SendBuffer)
	if !g.add(s) {
		s.Close()
		_ = conn.Close()
		return
	}
	g.log.Info().Str("conn_id", s.id).Str("remote", r.RemoteAddr).Msg("client connected")

	go func() {
		defer g.wg.Done()
		s.writePump(g.opts.WriteWait, g.opts.PongWait*9/10)
	}()
	g.readPump(s)
}

func (g *Gateway) add(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.sessions[s.id] = s
	g.wg.Add(2) // read and write pumps
	connectionsActive.Inc()
	return true
}

func (g *Gateway) remove(s *Session) {
	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()
	connectionsActive.Dec()
}

// readPump reads frames until the socket fails, then releases the session's
// presence entry.
func (g *Gateway) readPump(s *Session) {
	defer func() {
		if id, removed := g.registry.RemoveByConnection(s); removed {
			g.log.Info().Str("conn_id", s.id).Str("username", id).Msg("user disconnected")
		}
		presenceOnline.Set(float64(g.registry.Len()))
		g.limits.Forget(s.id)
		s.Close()
		g.remove(s)
		g.wg.Done()
	}()

	s.conn.SetReadLimit(g.opts.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Debug().Err(err).Str("conn_id", s.id).Msg("read failed")
			}
			return
		}
		if !g.limits.Allow(s.id) {
			eventsDropped.WithLabelValues("rate_limited").Inc()
			continue
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			eventsDropped.WithLabelValues("malformed").Inc()
			continue
		}
		g.dispatch(s, f)
	}
}

func (g *Gateway) dispatch(s *Session, f Frame) {
	lg := g.log.With().Str("conn_id", s.id).Str("event", f.Event).Logger()

	switch f.Event {
	case EventRegister:
		var d RegisterData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			eventsDropped.WithLabelValues("malformed").Inc()
			return
		}
		eventsTotal.WithLabelValues(EventRegister).Inc()
		if d.Username == "" {
			return
		}
		g.registry.Register(d.Username, s)
		presenceOnline.Set(float64(g.registry.Len()))
		lg.Info().Str("username", d.Username).Msg("user registered")

	case EventSendMessage:
		var req services.SendRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			eventsDropped.WithLabelValues("malformed").Inc()
			return
		}
		eventsTotal.WithLabelValues(EventSendMessage).Inc()
		g.relay.Relay(context.Background(), req)

	case EventError:
		eventsTotal.WithLabelValues(EventError).Inc()
		var d ErrorData
		_ = json.Unmarshal(f.Data, &d)
		lg.Warn().Str("message", d.Message).Msg("client reported error")

	default:
		eventsDropped.WithLabelValues("unknown_event").Inc()
		lg.Debug().Msg("unknown event")
	}
}

// Len returns the number of open sessions.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Shutdown stops accepting connections, closes every session and waits for
// their goroutines to finish or ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	open := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		open = append(open, s)
	}
	g.mu.Unlock()

	for _, s := range open {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
