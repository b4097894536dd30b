package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

// Manager owns every configured endpoint's live transport (listener,
// sender, file poller, or FHIR client) and is the Send implementation
// scenario.Replayer drives outbound traffic through; outbound Send calls go
// through a per-endpoint circuit breaker, listeners and pollers do not.
type Manager struct {
	Handler     MessageHandler
	MaxFrame    int
	AckTimeout  time.Duration
	IdleTimeout time.Duration
	Logger      *zap.Logger

	mu        sync.Mutex
	listeners map[string]*Listener
	senders   map[string]*Sender
	inboxes   map[string]*FileInbox
	fhir      *FHIRClient
	breakers  map[string]*gobreaker.CircuitBreaker
}

// NewManager builds an empty Manager; endpoints are registered via Start.
func NewManager(handler MessageHandler, maxFrame int, ackTimeout, idleTimeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		Handler:     handler,
		MaxFrame:    maxFrame,
		AckTimeout:  ackTimeout,
		IdleTimeout: idleTimeout,
		Logger:      logger,
		listeners:   make(map[string]*Listener),
		senders:     make(map[string]*Sender),
		inboxes:     make(map[string]*FileInbox),
		fhir:        NewFHIRClient(30 * time.Second),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

// StartEndpoint brings up the transport named by endpoint.Type: binds an
// MLLP listener, begins polling a file inbox, or does nothing for sender/
// client types (those connect lazily on first Send).
func (m *Manager) StartEndpoint(ctx context.Context, endpoint *domain.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch endpoint.Type {
	case domain.EndpointMLLPListener:
		l := &Listener{Endpoint: endpoint, Handler: m.Handler, MaxFrame: m.MaxFrame, ReadTimeout: m.AckTimeout, Logger: m.Logger}
		if err := l.Start(ctx); err != nil {
			return err
		}
		m.listeners[endpoint.ID] = l
	case domain.EndpointFileInbox:
		inbox := &FileInbox{Endpoint: endpoint, Handler: m.Handler, Logger: m.Logger}
		if err := inbox.Start(ctx); err != nil {
			return err
		}
		m.inboxes[endpoint.ID] = inbox
	case domain.EndpointMLLPSender:
		m.senders[endpoint.ID] = NewSender(fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port), m.AckTimeout, m.IdleTimeout, m.Logger)
	}
	return nil
}

// StopEndpoint tears down whatever live transport is registered for
// endpoint.ID, if any.
func (m *Manager) StopEndpoint(endpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.listeners[endpointID]; ok {
		delete(m.listeners, endpointID)
		return l.Stop(5 * time.Second)
	}
	if inbox, ok := m.inboxes[endpointID]; ok {
		delete(m.inboxes, endpointID)
		return inbox.Stop()
	}
	if s, ok := m.senders[endpointID]; ok {
		delete(m.senders, endpointID)
		return s.Close()
	}
	return nil
}

// TestEndpoint attempts a lightweight connectivity check against endpoint
// without sending application data: a TCP dial for MLLP sender targets, a
// stat of InboxPath for file-inbox endpoints. Other types always pass.
func (m *Manager) TestEndpoint(ctx context.Context, endpoint *domain.Endpoint) error {
	switch endpoint.Type {
	case domain.EndpointMLLPSender:
		s := NewSender(fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port), m.AckTimeout, m.IdleTimeout, m.Logger)
		defer s.Close()
		return s.open()
	case domain.EndpointFileInbox:
		_, err := os.Stat(endpoint.InboxPath)
		return err
	default:
		return nil
	}
}

// Send implements scenario.Transport: it dispatches payload to endpoint's
// sender or FHIR client, through a per-endpoint circuit breaker.
func (m *Manager) Send(ctx context.Context, endpoint *domain.Endpoint, payload []byte, protocol domain.Protocol) ([]byte, error) {
	breaker := m.breakerFor(endpoint.ID)
	result, err := breaker.Execute(func() (interface{}, error) {
		return m.sendDirect(ctx, endpoint, payload, protocol)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, coreerrors.New(coreerrors.KindConnectionRefused, "circuit breaker open for endpoint", map[string]any{"endpoint": endpoint.ID})
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (m *Manager) sendDirect(ctx context.Context, endpoint *domain.Endpoint, payload []byte, protocol domain.Protocol) ([]byte, error) {
	if protocol == domain.ProtocolFHIR {
		return m.fhir.Post(ctx, endpoint.FHIRBaseURL, payload)
	}

	m.mu.Lock()
	sender, ok := m.senders[endpoint.ID]
	if !ok {
		sender = NewSender(fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port), m.AckTimeout, m.IdleTimeout, m.Logger)
		m.senders[endpoint.ID] = sender
	}
	m.mu.Unlock()

	return sender.Send(ctx, payload)
}

func (m *Manager) breakerFor(endpointID string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[endpointID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "transport-" + endpointID,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.Logger.Warn("transport circuit breaker state change", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	m.breakers[endpointID] = cb
	return cb
}

// Module wires the Manager into the fx dependency graph with a single
// OnStop hook that tears down every live listener, inbox and sender when
// the application stops; nothing is started by the lifecycle.
var Module = fx.Options(
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			for id, l := range m.listeners {
				_ = l.Stop(5 * time.Second)
				delete(m.listeners, id)
			}
			for id, inbox := range m.inboxes {
				_ = inbox.Stop()
				delete(m.inboxes, id)
			}
			for id, s := range m.senders {
				_ = s.Close()
				delete(m.senders, id)
			}
			return nil
		},
	})
}
