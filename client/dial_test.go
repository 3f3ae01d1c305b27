package client

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"posrelay/protocol"
	"posrelay/server"
	"posrelay/transport"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRelayOverQUIC(t *testing.T) {
	log := zap.NewNop().Sugar()
	opts := transport.DefaultOptions()
	hub := server.NewHub(server.DefaultConfig(), log)

	srvTLS, err := transport.ServerTLSConfig("", "", opts.ALPN)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := transport.ListenQUIC("127.0.0.1:0", srvTLS, opts, log)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer ln.Close()
	go ln.Serve(ctx, hub)

	cliTLS, err := transport.ClientTLSConfig("", true, opts.ALPN)
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	a, _, err := Dial(ctx, addr, cliTLS, opts, protocol.Position{X: 10, Y: 20}, log)
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "A in table", func() bool { return len(hub.Players()) == 1 })

	b, bDone, err := Dial(ctx, addr, cliTLS, opts, protocol.Position{X: 50, Y: 60}, log)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	eventually(t, "B catch-up", func() bool {
		o := b.Others()
		return len(o) == 1 && containsPos(o, protocol.Position{X: 10, Y: 20})
	})
	eventually(t, "A sees B", func() bool {
		return containsPos(a.Others(), protocol.Position{X: 50, Y: 60})
	})

	a.Move(5, 0)
	eventually(t, "B sees A move", func() bool {
		return containsPos(b.Others(), protocol.Position{X: 15, Y: 20})
	})

	if err := a.Close(); err != nil {
		t.Logf("close A: %v", err)
	}
	eventually(t, "B removes A", func() bool { return len(b.Others()) == 0 })
	eventually(t, "A gone from table", func() bool { return len(hub.Players()) == 1 })
	// Close 等到服务端处理完 "Disconnected" 才断开连接，所以这是一次正常离开
	if m := hub.Metrics().Snapshot(); m["leaves"] != 1 || m["terminations"] != 0 {
		t.Fatalf("A's close was not seen as a leave: %v", m)
	}

	select {
	case err := <-bDone:
		t.Fatalf("B inbound loop ended early: %v", err)
	default:
	}
}

func containsPos(m map[protocol.PlayerID]protocol.Position, p protocol.Position) bool {
	for _, v := range m {
		if v == p {
			return true
		}
	}
	return false
}
