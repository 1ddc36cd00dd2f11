package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
	"github.com/liuscraft/orion-mixer/internal/mixer"
)

// Bridge 订阅混音器并将每个快照发布到 MQTT
//
// Publishing happens on the bridge goroutine; only the newest unpublished snapshot is kept.
type Bridge struct {
	cfg    Config
	mixer  mixer.Mixer
	pub    Publisher
	logger *zap.SugaredLogger

	pending chan mixer.State
	unsub   func()
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

func NewBridge(cfg Config, m mixer.Mixer, pub Publisher) *Bridge {
	return &Bridge{
		cfg:     cfg,
		mixer:   m,
		pub:     pub,
		logger:  logging.Named("mqtt.bridge"),
		pending: make(chan mixer.State, 1),
	}
}

// Start publishes the current snapshot and then every change until Stop or ctx ends.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	b.unsub = b.mixer.Subscribe(b.offer)
	b.offer(b.mixer.Snapshot())
	go b.run(ctx, b.done)
}

// Stop unsubscribes and waits for the publisher goroutine. The Publisher is not disconnected.
func (b *Bridge) Stop() {
	b.mu.Lock()
	done, cancel, unsub := b.done, b.cancel, b.unsub
	b.done, b.cancel, b.unsub = nil, nil, nil
	b.mu.Unlock()

	if done == nil {
		return
	}
	unsub()
	cancel()
	<-done
}

func (b *Bridge) offer(s mixer.State) {
	for {
		select {
		case b.pending <- s:
			return
		default:
		}
		select {
		case <-b.pending:
		default:
		}
	}
}

func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-b.pending:
			b.publish(ctx, s)
		}
	}
}

func (b *Bridge) publish(ctx context.Context, s mixer.State) {
	payload, err := json.Marshal(s.View())
	if err != nil {
		b.logger.Errorw("failed to encode snapshot", "error", err)
		return
	}
	if err := b.pub.Publish(ctx, b.cfg.Topic, b.cfg.QoS, b.cfg.Retain, payload); err != nil {
		b.logger.Warnw("failed to publish snapshot", "topic", b.cfg.Topic, "error", err)
	}
}
