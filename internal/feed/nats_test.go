package feed

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"iso8583_parser/internal/storage"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func connect(t *testing.T, ns *server.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// startSubscriber runs s until the returned stop function is called. stop
// waits for Run to return and reports its error.
func startSubscriber(t *testing.T, s *Subscriber) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run error: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("subscriber not ready")
	}

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("Run did not return")
			return nil
		}
	}
}

func TestSubscriberPublishAndReply(t *testing.T) {
	ns := runServer(t)
	s, err := NewSubscriber(Config{
		URL:            ns.ClientURL(),
		Subject:        "iso8583.raw",
		Queue:          "parsers",
		PublishSubject: "iso8583.decoded",
	}, newProcessor(t, nil), nil)
	if err != nil {
		t.Fatalf("NewSubscriber error: %v", err)
	}

	nc := connect(t, ns)
	out, err := nc.SubscribeSync("iso8583.decoded")
	if err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}
	stop := startSubscriber(t, s)

	if err := nc.Publish("iso8583.raw", []byte(authMessage)); err != nil {
		t.Fatal(err)
	}
	m, err := out.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg error: %v", err)
	}
	if got := m.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	var env Envelope
	if err := s.cfg.Codec.Unmarshal(m.Data, &env); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if env.Error != "" || env.Message == nil || env.Message.MTI != "0200" {
		t.Errorf("published envelope = %+v", env)
	}

	reply, err := nc.Request("iso8583.raw", []byte("0200"), 5*time.Second)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	env = Envelope{}
	if err := s.cfg.Codec.Unmarshal(reply.Data, &env); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if env.Error == "" || env.Message != nil {
		t.Errorf("reply envelope = %+v, want a decode error", env)
	}
	// The failed decode is published as well as answered.
	if _, err := out.NextMsg(5 * time.Second); err != nil {
		t.Errorf("second published envelope: %v", err)
	}

	if err := stop(); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	st := s.Stats()
	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"received", st.Received.Load(), 2},
		{"decoded", st.Decoded.Load(), 1},
		{"failed", st.Failed.Load(), 1},
		{"published", st.Published.Load(), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestSubscriberDrainsOnCancel(t *testing.T) {
	ns := runServer(t)
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	s, err := NewSubscriber(Config{URL: ns.ClientURL(), Subject: "iso8583.raw"}, newProcessor(t, db), nil)
	if err != nil {
		t.Fatalf("NewSubscriber error: %v", err)
	}
	stop := startSubscriber(t, s)

	const n = 200
	nc := connect(t, ns)
	for i := 0; i < n; i++ {
		raw := "0200" + "7000000000000000" + "164111111111111111" + "000000" + fmt.Sprintf("%012d", i+1)
		if err := nc.Publish("iso8583.raw", []byte(raw)); err != nil {
			t.Fatal(err)
		}
	}
	// Once the server has answered the flush every message is on its way to
	// the subscriber, so cancelling now must not lose any of them.
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := stop(); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	st := s.Stats()
	if got := st.Received.Load(); got != n {
		t.Errorf("received = %d, want %d", got, n)
	}
	if got := st.Decoded.Load(); got != n {
		t.Errorf("decoded = %d, want %d", got, n)
	}
	if got := st.Failed.Load(); got != 0 {
		t.Errorf("failed = %d, want 0", got)
	}

	stats, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.TotalMessages != n {
		t.Errorf("stored = %d, want %d", stats.TotalMessages, n)
	}
}
