package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// NATSConfig параметры подключения шины к NATS
type NATSConfig struct {
	URL string `yaml:"url" env:"NATS_URL"`
	// JetStream включает персистентный стрим вместо core NATS
	JetStream bool          `yaml:"jetstream" env:"NATS_JETSTREAM"`
	Stream    string        `yaml:"stream" env:"NATS_STREAM"`
	Retention time.Duration `yaml:"retention" env:"NATS_RETENTION"`
}

// NATSBus реализует EventBus поверх NATS (core или JetStream).
type NATSBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	stream    string
	published uint64
	consumed  uint64
	dropped   uint64
}

// NewNATSBus подключается к NATS и, для JetStream, гарантирует наличие стрима.
// url: nats://127.0.0.1:4222, stream: "EVENTS".
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Stream == "" {
		cfg.Stream = "EVENTS"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("descent-eventbus"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	nb := &NATSBus{nc: nc, stream: cfg.Stream}
	if !cfg.JetStream {
		return nb, nil
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure stream exists (subjects: events.*)
	if _, err = js.StreamInfo(cfg.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{"events.*"},
			Retention: nats.LimitsPolicy,
			MaxAge:    cfg.Retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}
	nb.js = js
	return nb, nil
}

func subject(eventType string) string {
	return "events." + eventType
}

// Publish сериализует Envelope в JSON и публикует в subject events.<type>.
func (nb *NATSBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		atomic.AddUint64(&nb.dropped, 1)
		return err
	}
	if nb.js != nil {
		_, err = nb.js.Publish(subject(ev.EventType), data, nats.Context(ctx))
	} else {
		err = nb.nc.Publish(subject(ev.EventType), data)
	}
	if err != nil {
		atomic.AddUint64(&nb.dropped, 1)
		return err
	}
	atomic.AddUint64(&nb.published, 1)
	return nil
}

// Subscribe подписывается на события и вызывает handler для подходящих.
// В режиме JetStream создаётся durable consumer с ручным подтверждением.
func (nb *NATSBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subj := "events.*"
	if len(f.Types) == 1 {
		subj = subject(f.Types[0])
	}

	deliver := func(data []byte) {
		var ev Envelope
		if err := json.Unmarshal(data, &ev); err != nil {
			atomic.AddUint64(&nb.dropped, 1)
			return
		}
		if !matchFilter(&ev, f) {
			return
		}
		h(ctx, &ev)
		atomic.AddUint64(&nb.consumed, 1)
	}

	var (
		natSub *nats.Subscription
		err    error
	)
	if nb.js != nil {
		durable := nats.Durable(fmt.Sprintf("sub_%d", time.Now().UnixNano()))
		natSub, err = nb.js.Subscribe(subj, func(msg *nats.Msg) {
			deliver(msg.Data)
			_ = msg.Ack()
		}, nats.ManualAck(), durable, nats.DeliverNew(), nats.AckWait(30*time.Second))
	} else {
		natSub, err = nb.nc.Subscribe(subj, func(msg *nats.Msg) {
			deliver(msg.Data)
		})
	}
	if err != nil {
		return nil, err
	}
	// Подписка должна быть зарегистрирована на сервере до возврата
	if err := nb.nc.Flush(); err != nil {
		_ = natSub.Unsubscribe()
		return nil, err
	}

	return &natsSub{natSub}, nil
}

// natsSub обёртка вокруг *nats.Subscription чтобы удовлетворить наш интерфейс.
type natsSub struct {
	s *nats.Subscription
}

func (n *natsSub) Unsubscribe() {
	_ = n.s.Unsubscribe()
}

// Metrics возвращает текущие метрики.
func (nb *NATSBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&nb.published),
		Consumed:  atomic.LoadUint64(&nb.consumed),
		Dropped:   atomic.LoadUint64(&nb.dropped),
		InFlight:  0, // очередь держит сервер NATS
	}
}

// Close дожидается доставки буферизованных сообщений и закрывает соединение
func (nb *NATSBus) Close() error {
	return nb.nc.Drain()
}
