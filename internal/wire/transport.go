package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/session"
)

// ServeListener accepts connections on addr, registers one Session per
// peer in registry, and pumps packets in both directions until ctx is
// cancelled. This is the broadcast-framed wire protocol's listen side
// (spec.md §6 "(listen_channel, reply_channel) pairs"), modeled here
// as one TCP connection per peer rather than a literal shared medium.
func ServeListener(ctx context.Context, addr string, registry *session.Registry[Packet], log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("wire: listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	log.Info("wire listener started", zap.String("addr", addr))
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wire: accept on %s: %w", addr, err)
		}
		go pumpConn(ctx, conn, registry, log)
	}
}

// DialPeer connects to remoteAddr, registers a Session for it in
// registry, and pumps packets until ctx is cancelled or the connection
// drops. Used by a supervisor to reach each reactor-plc it owns.
func DialPeer(ctx context.Context, remoteAddr string, registry *session.Registry[Packet], log *zap.Logger) error {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", remoteAddr)
	if err != nil {
		return fmt.Errorf("wire: dial %s: %w", remoteAddr, err)
	}
	pumpConn(ctx, conn, registry, log)
	return nil
}

// pumpConn registers a session for conn's remote address and runs its
// read and write loops until either fails or ctx is cancelled.
func pumpConn(ctx context.Context, conn net.Conn, registry *session.Registry[Packet], log *zap.Logger) {
	addr := conn.RemoteAddr().String()
	sess := registry.GetOrCreate(addr)
	defer func() {
		sess.Close()
		_ = conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(conn)
		for {
			p, err := Decode(r)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("wire: connection read ended", zap.String("remote_addr", addr), zap.Error(err))
				}
				return
			}
			sess.OnPacket(p)
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			var writeErr error
			sess.Iterate(func(p Packet) {
				if writeErr != nil {
					return
				}
				writeErr = Encode(conn, p)
			})
			if writeErr != nil {
				log.Debug("wire: connection write failed", zap.String("remote_addr", addr), zap.Error(writeErr))
				return
			}
		}
	}
}
