package docstore

import (
	"context"
	"sync"
)

// broadcaster fans committed changes out to in-process subscribers.
// Each subscriber has an unbounded queue so a slow consumer that writes back
// to the store never blocks the committing goroutine.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	collection string
	mu         sync.Mutex
	queue      []Change
	signal     chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]*subscriber)}
}

func (b *broadcaster) subscribe(ctx context.Context, collection string) <-chan Change {
	s := &subscriber{
		collection: collection,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	out := make(chan Change)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		}()
		for {
			s.mu.Lock()
			var next *Change
			if len(s.queue) > 0 {
				c := s.queue[0]
				s.queue = s.queue[1:]
				next = &c
			}
			s.mu.Unlock()

			if next == nil {
				select {
				case <-ctx.Done():
					return
				case <-s.done:
					return
				case <-s.signal:
					continue
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case out <- *next:
			}
		}
	}()
	return out
}

func (b *broadcaster) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		for _, c := range changes {
			if c.Ref.Collection == s.collection {
				s.queue = append(s.queue, c)
			}
		}
		s.mu.Unlock()
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.closeOnce.Do(func() { close(s.done) })
	}
}
