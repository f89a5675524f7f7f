package wire

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/session"
)

func TestServeListenerAndDialPeerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverRegistry := session.NewRegistry[Packet](16, time.Second, nil, zap.NewNop())
	clientRegistry := session.NewRegistry[Packet](16, time.Second, nil, zap.NewNop())

	const addr = "127.0.0.1:28711"
	go func() { _ = ServeListener(ctx, addr, serverRegistry, zap.NewNop()) }()
	time.Sleep(50 * time.Millisecond)

	go func() { _ = DialPeer(ctx, addr, clientRegistry, zap.NewNop()) }()
	time.Sleep(50 * time.Millisecond)

	if clientRegistry.Len() != 1 {
		t.Fatalf("expected client registry to have 1 session, got %d", clientRegistry.Len())
	}

	clientSess, _ := clientRegistry.Get(addr)
	clientSess.PushOutbound(New("client", 1, ClassMGMT, map[string]any{"hello": true}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if serverRegistry.Len() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if serverRegistry.Len() == 0 {
		t.Fatal("expected server registry to register an inbound session")
	}

	var received Packet
	var gotOne bool
	for i := 0; i < 50 && !gotOne; i++ {
		serverRegistry.DispatchInbound(func(addr string, p Packet) {
			received = p
			gotOne = true
		})
		if !gotOne {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if !gotOne {
		t.Fatal("expected server to receive the MGMT packet")
	}
	if received.SenderID != "client" || received.Payload["hello"] != true {
		t.Fatalf("unexpected received packet: %+v", received)
	}
}
