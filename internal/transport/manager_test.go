package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hl7-interop-bridge/internal/domain"
)

func TestManagerSendDispatchesFHIRToClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"resourceType":"Bundle","type":"transaction-response"}`))
	}))
	defer server.Close()

	m := NewManager(nil, 0, 2*time.Second, time.Minute, nil)
	endpoint := &domain.Endpoint{ID: "fhir-1", FHIRBaseURL: server.URL}

	resp, err := m.Send(context.Background(), endpoint, []byte(`{}`), domain.ProtocolFHIR)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp) != `{"resourceType":"Bundle","type":"transaction-response"}` {
		t.Errorf("resp = %s", resp)
	}
}

func TestManagerSendReusesSamePortAcrossMLLPCalls(t *testing.T) {
	port := freePort(t)
	endpoint := &domain.Endpoint{ID: "hl7-1", Host: "127.0.0.1", Port: port}

	var calls int
	listener := &Listener{
		Endpoint: endpoint,
		MaxFrame: 1024 * 1024,
		Handler: func(ctx context.Context, raw []byte, ep *domain.Endpoint) ([]byte, error) {
			calls++
			return []byte("MSH|ACK|\rMSA|AA|CTL1\r"), nil
		},
	}
	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer listener.Stop(time.Second)

	m := NewManager(nil, 0, 2*time.Second, time.Minute, nil)
	for i := 0; i < 2; i++ {
		if _, err := m.Send(context.Background(), endpoint, []byte("MSH|ADT^A01|"), domain.ProtocolHL7v2); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
