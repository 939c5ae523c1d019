package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// Config configures the NATS subscriber.
type Config struct {
	URL            string
	Subject        string // Raw messages arrive here.
	Queue          string // Queue group, so several parsers share the load.
	PublishSubject string // Envelopes are published here when set.
	Name           string // Connection name shown by the server.
	Codec          Codec
}

// Counters track subscriber activity.
type Counters struct {
	Received  atomic.Int64
	Decoded   atomic.Int64
	Failed    atomic.Int64
	Published atomic.Int64
}

// Subscriber consumes raw messages from NATS, decodes them with a Processor
// and publishes envelopes.
type Subscriber struct {
	cfg    Config
	proc   *Processor
	logger *slog.Logger
	stats  Counters
	ready  chan struct{}
}

// NewSubscriber creates a Subscriber. It does not connect until Run.
func NewSubscriber(cfg Config, proc *Processor, logger *slog.Logger) (*Subscriber, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		return nil, errors.New("feed: subject is required")
	}
	if cfg.Name == "" {
		cfg.Name = "iso8583-parser"
	}
	if cfg.Codec == nil {
		cfg.Codec = jsonCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{cfg: cfg, proc: proc, logger: logger, ready: make(chan struct{})}, nil
}

// Ready is closed once Run has subscribed and the server has confirmed it.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Stats returns the subscriber counters.
func (s *Subscriber) Stats() *Counters {
	return &s.stats
}

// Run connects, subscribes and processes messages until ctx is cancelled,
// then drains the connection. It returns after every message delivered before
// the drain has been handled. Handlers run with a context that is not
// cancelled with ctx, so stores finish writes for drained messages.
func (s *Subscriber) Run(ctx context.Context) error {
	closed := make(chan struct{})
	nc, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", s.cfg.URL, err)
	}

	handlerCtx := context.WithoutCancel(ctx)
	sub, err := nc.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, func(m *nats.Msg) {
		s.handle(handlerCtx, nc, m)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}
	close(s.ready)
	s.logger.Info("listening", "url", nc.ConnectedUrl(), "subject", sub.Subject, "queue", s.cfg.Queue,
		"publish", s.cfg.PublishSubject, "encoding", s.cfg.Codec.Name())

	<-ctx.Done()

	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	<-closed

	s.logger.Info("feed stopped",
		"received", s.stats.Received.Load(), "decoded", s.stats.Decoded.Load(),
		"failed", s.stats.Failed.Load(), "published", s.stats.Published.Load())
	return nil
}

func (s *Subscriber) handle(ctx context.Context, nc *nats.Conn, m *nats.Msg) {
	s.stats.Received.Add(1)

	env := s.proc.Process(ctx, m.Data)
	if env.Error != "" {
		s.stats.Failed.Add(1)
	} else {
		s.stats.Decoded.Add(1)
	}

	if s.cfg.PublishSubject == "" && m.Reply == "" {
		return
	}
	data, err := s.cfg.Codec.Marshal(env)
	if err != nil {
		s.logger.Error("encode envelope", "error", err)
		return
	}

	if s.cfg.PublishSubject != "" {
		out := nats.NewMsg(s.cfg.PublishSubject)
		out.Header.Set("Content-Type", s.cfg.Codec.ContentType())
		out.Data = data
		if err := nc.PublishMsg(out); err != nil {
			s.logger.Error("publish envelope", "subject", s.cfg.PublishSubject, "error", err)
		} else {
			s.stats.Published.Add(1)
		}
	}
	if m.Reply != "" {
		if err := m.Respond(data); err != nil {
			s.logger.Error("respond", "reply", m.Reply, "error", err)
		}
	}
}
