// Package transport implements the wire-level endpoints named in the
// design: an MLLP listener and sender, a file-inbox poller, and a FHIR
// HTTP client. The Manager routes outbound sends through per-endpoint
// circuit breakers and stops every live transport from an fx OnStop hook.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
)

// MessageHandler processes one decoded inbound payload and returns the
// bytes to write back on the same connection (an HL7 ACK).
type MessageHandler func(ctx context.Context, raw []byte, endpoint *domain.Endpoint) ([]byte, error)

// Listener accepts MLLP connections for one configured endpoint, spawning
// one worker goroutine per connection, each decoding frames independently.
type Listener struct {
	Endpoint    *domain.Endpoint
	Handler     MessageHandler
	MaxFrame    int
	ReadTimeout time.Duration
	Logger      *zap.Logger

	mu       sync.Mutex
	ln       net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// Start binds the listener's host:port and begins accepting connections in
// a background goroutine. It returns once the bind succeeds.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", l.Endpoint.Host, l.Endpoint.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: binding mllp listener %s: %w", addr, err)
	}
	l.ln = ln
	l.shutdown = make(chan struct{})
	l.logger().Info("mllp listener started", zap.String("endpoint", l.Endpoint.ID), zap.String("addr", addr))

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

// Stop closes the listener and waits for in-flight connection workers to
// drain, up to grace.
func (l *Listener) Stop(grace time.Duration) error {
	l.mu.Lock()
	ln := l.ln
	shutdown := l.shutdown
	l.mu.Unlock()

	if ln == nil {
		return nil
	}
	close(shutdown)
	err := ln.Close()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		l.logger().Warn("mllp listener stop: workers did not drain within grace period", zap.String("endpoint", l.Endpoint.ID))
	}
	return err
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return
			default:
				l.logger().Warn("mllp accept error", zap.Error(err))
				return
			}
		}
		l.wg.Add(1)
		go l.serveConnection(conn)
	}
}

func (l *Listener) serveConnection(conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	decoder := codec.NewFrameDecoder(l.MaxFrame)
	buf := make([]byte, 64*1024)

	for {
		if l.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(l.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			frames, decodeErr := decoder.Feed(buf[:n])
			for _, frame := range frames {
				l.handleFrame(conn, frame)
			}
			if decodeErr != nil {
				l.logger().Warn("mllp framing error, closing connection", zap.Error(decodeErr))
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (l *Listener) handleFrame(conn net.Conn, frame []byte) {
	ack, err := l.Handler(context.Background(), frame, l.Endpoint)
	if err != nil {
		l.logger().Error("mllp handler failed", zap.String("endpoint", l.Endpoint.ID), zap.Error(err))
		return
	}
	if _, err := conn.Write(codec.EncodeFrame(ack)); err != nil {
		l.logger().Warn("mllp ack write failed", zap.Error(err))
	}
}

func (l *Listener) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
