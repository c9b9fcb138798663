package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Session is one websocket connection. The send queue is never closed;
// Close signals the writer through done instead.
type Session struct {
	id     string
	conn   *websocket.Conn
	send   chan Envelope
	done   chan struct{}
	once   sync.Once
	binary atomic.Bool
	log    zerolog.Logger

	// owned by the read loop
	state SessionState
}

func newSession(conn *websocket.Conn, sendBuffer int, state SessionState, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:    id,
		conn:  conn,
		send:  make(chan Envelope, sendBuffer),
		done:  make(chan struct{}),
		state: state,
		log:   log.With().Str("session_id", id).Logger(),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Close disconnects the session. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once the session is closing.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// enqueue queues env without blocking. It reports false when the session is
// closed or its queue is full.
func (s *Session) enqueue(env Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

// codec returns the codec of the last frame received.
func (s *Session) codec() codec {
	if s.binary.Load() {
		return cborCodec{}
	}
	return jsonCodec{}
}

func (s *Session) writePump(writeWait, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case env := <-s.send:
			c := s.codec()
			frame, err := c.encode(env)
			if err != nil {
				s.log.Error().Err(err).Str("type", env.Type).Msg("encode frame failed")
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(c.frameType(), frame); err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed")
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.flushPending()
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flushPending writes frames already queued when the session closed, under
// the write deadline set by the caller.
func (s *Session) flushPending() {
	for {
		select {
		case env := <-s.send:
			c := s.codec()
			frame, err := c.encode(env)
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(c.frameType(), frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump feeds decoded frames to handle until the connection fails.
func (s *Session) readPump(maxMessageSize int64, pongWait time.Duration, handle func(Inbound)) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		c, ok := codecFor(messageType)
		if !ok {
			continue
		}
		s.binary.Store(messageType == websocket.BinaryMessage)
		handle(parseInbound(c, frame))
	}
}
