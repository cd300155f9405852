// Package stream serves live capture sessions over WebSocket. Clients send
// camera frames as binary messages and receive quality snapshots as JSON.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/blackmouse572/skin-doctor/internal/camera"
	"github.com/blackmouse572/skin-doctor/internal/detection"
	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/landmarker"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 4 << 20
	outboxSize    = 8

	// DefaultMaxFPS caps inbound frames per session.
	DefaultMaxFPS = 15
)

// Config holds what every session needs to build its detection loop.
type Config struct {
	Load               landmarker.Loader
	Options            landmarker.Options
	Analyzer           *facequality.Analyzer
	NewScheduler       func() detection.Scheduler
	StabilizationDelay time.Duration
	MaxFPS             float64
	Logger             *zap.Logger
	CheckOrigin        func(r *http.Request) bool
}

// Hub upgrades HTTP requests into sessions and tracks the live ones.
type Hub struct {
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewHub creates a hub.
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxFPS <= 0 {
		cfg.MaxFPS = DefaultMaxFPS
	}
	if cfg.Options == (landmarker.Options{}) {
		cfg.Options = landmarker.VideoOptions()
	}
	return &Hub{
		cfg:    cfg,
		logger: cfg.Logger.Named("stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			CheckOrigin:     cfg.CheckOrigin,
		},
		sessions: make(map[string]*Session),
	}
}

// ErrHubClosed is returned when a connection arrives after Close.
var ErrHubClosed = errors.New("stream: hub closed")

// Serve upgrades the request and runs a session until the client leaves.
// Upgrade failures have already been answered when an error is returned.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return err
	}

	session := h.newSession(conn, userID)
	h.register(session)
	defer h.unregister(session)

	session.run(context.Background())
	return nil
}

// Active reports the number of live sessions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close ends every session and waits for them to release their detectors.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
	h.wg.Wait()
}

func (h *Hub) newSession(conn *websocket.Conn, userID string) *Session {
	id := uuid.NewString()
	logger := h.logger.With(zap.String("session_id", id), zap.String("user_id", userID))
	source := NewFrameSource()

	var scheduler detection.Scheduler
	if h.cfg.NewScheduler != nil {
		scheduler = h.cfg.NewScheduler()
	}
	loop := detection.NewLoop(detection.Config{
		Source:             source,
		Load:               h.cfg.Load,
		Options:            h.cfg.Options,
		Scheduler:          scheduler,
		Analyzer:           h.cfg.Analyzer,
		Logger:             logger,
		StabilizationDelay: h.cfg.StabilizationDelay,
	})

	return &Session{
		id:      id,
		conn:    conn,
		source:  source,
		loop:    loop,
		limiter: rate.NewLimiter(rate.Limit(h.cfg.MaxFPS), 1),
		outbox:  make(chan Message, outboxSize),
		logger:  logger,
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.stop()
		return
	}
	h.sessions[s.id] = s
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
}

// Session is one client connection with its own detection loop.
type Session struct {
	id      string
	conn    *websocket.Conn
	source  *FrameSource
	loop    *detection.Loop
	limiter *rate.Limiter
	outbox  chan Message
	logger  *zap.Logger

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	dropped  int
}

func (s *Session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	defer cancel()

	s.logger.Info("capture session started")
	if err := s.loop.Start(ctx); err != nil {
		s.logger.Error("failed to start detection loop", zap.Error(err))
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx)
	}()

	s.readLoop(ctx)
	cancel()
	<-writerDone

	s.loop.Close()
	_ = s.conn.Close()
	s.logger.Info("capture session ended", zap.Int("dropped_frames", s.dropped))
}

func (s *Session) stop() {
	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	_ = s.conn.Close()
}

func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				s.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.BinaryMessage:
			s.handleFrame(data)
		case websocket.TextMessage:
			s.handleControl(ctx, data)
		}
	}
}

func (s *Session) handleFrame(data []byte) {
	if !s.limiter.Allow() {
		s.dropped++
		return
	}
	if err := s.source.PushEncoded(data); err != nil {
		s.logger.Debug("discarding undecodable frame", zap.Error(err))
		s.send(Message{Type: TypeError, Error: "invalid frame"})
	}
}

func (s *Session) handleControl(ctx context.Context, data []byte) {
	var control Control
	if err := json.Unmarshal(data, &control); err != nil {
		s.send(Message{Type: TypeError, Error: "invalid control message"})
		return
	}

	switch control.Type {
	case ControlCameraError:
		failure := camera.Classify(control.Name, control.Message)
		s.logger.Info("camera access failed", zap.String("code", failure.Code), zap.String("raw_message", control.Message))
		s.send(Message{Type: TypeCameraError, CameraError: &failure})
	case ControlRetry:
		if err := s.loop.Retry(ctx); err != nil {
			s.send(Message{Type: TypeError, Error: err.Error()})
		}
	default:
		s.send(Message{Type: TypeError, Error: "unknown control message"})
	}
}

// send queues msg for the writer. When the writer is behind the message is dropped.
func (s *Session) send(msg Message) {
	select {
	case s.outbox <- msg:
	default:
		s.logger.Debug("outbox full, dropping message", zap.String("type", msg.Type))
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	updates, unsubscribe := s.loop.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var (
		lastStatus   *StatusPayload
		lastSnapshot *facequality.Snapshot
	)

	for {
		var err error
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			status := statusPayload(update.Status)
			statusChanged := lastStatus == nil || *lastStatus != *status
			if statusChanged {
				err = s.write(Message{Type: TypeStatus, SessionID: s.id, Status: status})
				lastStatus = status
			}
			if err == nil && (statusChanged || update.Snapshot != lastSnapshot) {
				err = s.write(snapshotMessage(update))
				lastSnapshot = update.Snapshot
			}
		case msg := <-s.outbox:
			err = s.write(msg)
		case <-ticker.C:
			err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}

		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("websocket write failed", zap.Error(err))
			}
			s.stop()
			return
		}
	}
}

func (s *Session) write(msg Message) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}
