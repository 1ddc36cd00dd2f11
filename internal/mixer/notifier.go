package mixer

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Subscriber receives the complete mixer state after every change.
type Subscriber func(State)

type subscription struct {
	id uint64
	fn Subscriber
}

type delivery struct {
	state State
	subs  []subscription
}

// notifier 同步快照发布器
//
// Each published snapshot is paired with the subscriber set captured at publish time. Deliveries
// are drained in publish order by whichever caller finds the queue idle, so a subscriber that
// mutates the mixer from inside its callback gets its own notification after the current one
// completes instead of deadlocking. Cost per mutation is O(subscribers × channels): the state is
// copied once and handed to every subscriber.
type notifier struct {
	mu         sync.Mutex
	nextID     uint64
	subs       []subscription
	pending    []delivery
	delivering bool
	logger     *zap.SugaredLogger
}

func newNotifier(logger *zap.SugaredLogger) *notifier {
	return &notifier{logger: logger}
}

func (n *notifier) subscribe(fn Subscriber) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.subs = slices.DeleteFunc(n.subs, func(s subscription) bool {
				return s.id == id
			})
		})
	}
}

func (n *notifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// enqueue must be called while the caller still holds the lock that serialised the mutation,
// which fixes delivery order to mutation order. It reports whether anyone will receive the state.
func (n *notifier) enqueue(state State) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.subs) == 0 {
		return false
	}
	n.pending = append(n.pending, delivery{state: state, subs: slices.Clone(n.subs)})
	return true
}

func (n *notifier) drain() {
	n.mu.Lock()
	if n.delivering {
		n.mu.Unlock()
		return
	}
	n.delivering = true
	for len(n.pending) > 0 {
		d := n.pending[0]
		n.pending[0] = delivery{}
		n.pending = n.pending[1:]
		n.mu.Unlock()

		for _, s := range d.subs {
			if n.active(s.id) {
				n.call(s, d.state)
			}
		}

		n.mu.Lock()
	}
	n.pending = nil
	n.delivering = false
	n.mu.Unlock()
}

// active reports whether the subscription is still registered; one unsubscribed earlier in the
// same delivery is skipped.
func (n *notifier) active(id uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.ContainsFunc(n.subs, func(s subscription) bool {
		return s.id == id
	})
}

func (n *notifier) call(s subscription, state State) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("subscriber panicked", "subscription", s.id, "panic", r)
		}
	}()
	s.fn(state)
}

func (n *notifier) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = nil
	n.pending = nil
}
