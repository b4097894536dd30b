package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"hl7-interop-bridge/internal/domain"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestMLLPSenderListenerRoundTrip(t *testing.T) {
	port := freePort(t)
	endpoint := &domain.Endpoint{ID: "ep1", Host: "127.0.0.1", Port: port}

	var received []byte
	listener := &Listener{
		Endpoint: endpoint,
		MaxFrame: 1024 * 1024,
		Handler: func(ctx context.Context, raw []byte, ep *domain.Endpoint) ([]byte, error) {
			received = raw
			return []byte("MSH|ACK|\rMSA|AA|CTL1\r"), nil
		},
	}
	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer listener.Stop(time.Second)

	sender := NewSender("127.0.0.1:"+strconv.Itoa(port), 2*time.Second, 0, nil)
	defer sender.Close()

	ack, err := sender.Send(context.Background(), []byte("MSH|ADT^A01|\rPID|...|"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(ack) != "MSH|ACK|\rMSA|AA|CTL1\r" {
		t.Errorf("ack = %q", ack)
	}
	if string(received) != "MSH|ADT^A01|\rPID|...|" {
		t.Errorf("received = %q", received)
	}
}

func TestMLLPSenderReusesConnectionAcrossSends(t *testing.T) {
	port := freePort(t)
	endpoint := &domain.Endpoint{ID: "ep2", Host: "127.0.0.1", Port: port}

	var calls int
	listener := &Listener{
		Endpoint: endpoint,
		MaxFrame: 1024 * 1024,
		Handler: func(ctx context.Context, raw []byte, ep *domain.Endpoint) ([]byte, error) {
			calls++
			return []byte("MSH|ACK|\rMSA|AA|CTL" + strconv.Itoa(calls) + "\r"), nil
		},
	}
	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer listener.Stop(time.Second)

	sender := NewSender("127.0.0.1:"+strconv.Itoa(port), 2*time.Second, time.Minute, nil)
	defer sender.Close()

	for i := 0; i < 3; i++ {
		if _, err := sender.Send(context.Background(), []byte("MSH|ADT^A0"+strconv.Itoa(i)+"|")); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 handled messages, got %d", calls)
	}
}
