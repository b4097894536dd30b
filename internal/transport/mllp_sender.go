package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"hl7-interop-bridge/internal/codec"
	coreerrors "hl7-interop-bridge/internal/errors"
)

// Sender maintains one lazily-opened, persistent MLLP connection per
// destination, closing it after IdleTimeout of inactivity and reopening on
// the next Send.
type Sender struct {
	Addr        string
	AckTimeout  time.Duration
	IdleTimeout time.Duration
	Logger      *zap.Logger

	mu       sync.Mutex
	conn     net.Conn
	lastUsed time.Time
	idleStop chan struct{}
}

// NewSender builds a Sender targeting addr ("host:port").
func NewSender(addr string, ackTimeout, idleTimeout time.Duration, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{Addr: addr, AckTimeout: ackTimeout, IdleTimeout: idleTimeout, Logger: logger}
}

// Send frames payload, writes it to the persistent connection (opening one
// if needed), and blocks until an ACK frame arrives or AckTimeout elapses.
func (s *Sender) Send(ctx context.Context, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.open(); err != nil {
			return nil, err
		}
	}

	if _, err := s.conn.Write(codec.EncodeFrame(payload)); err != nil {
		s.closeLocked()
		return nil, coreerrors.New(coreerrors.KindConnectionRefused, "mllp write failed", map[string]any{"addr": s.Addr, "cause": err.Error()})
	}

	ack, err := s.readOneFrame()
	if err != nil {
		s.closeLocked()
		return nil, err
	}
	s.lastUsed = time.Now()
	return ack, nil
}

func (s *Sender) open() error {
	conn, err := net.DialTimeout("tcp", s.Addr, 10*time.Second)
	if err != nil {
		return coreerrors.New(coreerrors.KindConnectionRefused, "mllp dial failed", map[string]any{"addr": s.Addr, "cause": err.Error()})
	}
	s.conn = conn
	s.lastUsed = time.Now()
	s.idleStop = make(chan struct{})
	go s.watchIdle(s.idleStop)
	return nil
}

func (s *Sender) readOneFrame() ([]byte, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.AckTimeout))
	decoder := codec.NewFrameDecoder(0)
	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			frames, decodeErr := decoder.Feed(buf[:n])
			if len(frames) > 0 {
				return frames[0], nil
			}
			if decodeErr != nil {
				return nil, decodeErr
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, coreerrors.New(coreerrors.KindReadTimeout, "ack not received within timeout", map[string]any{"addr": s.Addr})
			}
			return nil, fmt.Errorf("transport: reading ack: %w", err)
		}
	}
}

// watchIdle closes the connection after IdleTimeout of inactivity, unless
// stop fires first (a fresh open superseded this watcher).
func (s *Sender) watchIdle(stop chan struct{}) {
	if s.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.IdleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := !s.lastUsed.IsZero() && time.Since(s.lastUsed) >= s.IdleTimeout
			if idle {
				s.logger().Info("mllp sender idle timeout, closing connection", zap.String("addr", s.Addr))
				s.closeLocked()
			}
			open := s.conn != nil
			s.mu.Unlock()
			if !open {
				return
			}
		}
	}
}

func (s *Sender) closeLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.idleStop != nil {
		close(s.idleStop)
		s.idleStop = nil
	}
}

// Close tears down the underlying connection, if any.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Sender) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
