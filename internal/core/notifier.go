package core

import (
	"context"
	"sync"
)

// notifier fans committed table-change events out to in-process
// subscribers. Each subscriber names the tables it cares about and gets a
// buffered event channel; a slow subscriber drops intermediate events
// rather than blocking the dispatch loop (live queries re-read full
// snapshots, so only the latest event matters).
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	tables map[string]bool
	events chan string
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]*subscription)}
}

// subscribe registers interest in the given tables and returns the event
// channel plus an unsubscribe func. Unsubscribing closes the channel.
func (n *notifier) subscribe(tables ...string) (<-chan string, func()) {
	sub := &subscription{
		tables: make(map[string]bool, len(tables)),
		events: make(chan string, 1),
	}
	for _, t := range tables {
		sub.tables[t] = true
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(sub.events)
		return sub.events, func() {}
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(sub.events)
			}
		})
	}
	return sub.events, cancel
}

// dispatch delivers a table-change event to every interested subscriber.
func (n *notifier) dispatch(table string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		if !sub.tables[table] {
			continue
		}
		select {
		case sub.events <- table:
		default:
			// Channel already holds a pending event; a fresh snapshot will
			// be taken when it drains, so this one is redundant.
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.events)
	}
}

// Watch runs query once for an immediate snapshot, then re-runs it after
// every committed write to any of the named tables, pushing each fresh
// snapshot to the returned channel. The channel always carries the latest
// state; intermediate snapshots may be skipped for slow readers. Calling
// stop or cancelling ctx both tear the subscription down and close the
// channel.
func Watch[T any](ctx context.Context, s *Store, tables []string, query func(context.Context) (T, error)) (snapshot T, updates <-chan T, stop func(), err error) {
	snapshot, err = query(ctx)
	if err != nil {
		return snapshot, nil, nil, err
	}

	events, unsubscribe := s.notifier.subscribe(tables...)
	out := make(chan T, 1)
	watchCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				next, qerr := query(watchCtx)
				if qerr != nil {
					if watchCtx.Err() != nil {
						return
					}
					s.log.WithError(qerr).Warn("live query refresh failed")
					continue
				}
				// Replace any undelivered snapshot with the newer one.
				select {
				case out <- next:
				default:
					select {
					case <-out:
					default:
					}
					select {
					case out <- next:
					case <-watchCtx.Done():
						return
					}
				}
			}
		}
	}()

	stop = func() {
		cancel()
		unsubscribe()
	}
	return snapshot, out, stop, nil
}
