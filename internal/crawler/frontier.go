package crawler

import (
	"sync"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

// frontier is the unbounded queue of claimed targets awaiting dispatch.
// Workers push children here without blocking; a single feeder goroutine
// moves targets into the bounded worker pool. Decoupling the two is what
// keeps workers from deadlocking on a full pool queue when a page fans out
// wider than the queue size.
type frontier struct {
	mu    sync.Mutex
	queue []types.Target

	// signal carries at most one pending wakeup for the feeder.
	signal chan struct{}
}

func newFrontier() *frontier {
	return &frontier{signal: make(chan struct{}, 1)}
}

func (f *frontier) push(t types.Target) {
	f.mu.Lock()
	f.queue = append(f.queue, t)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *frontier) pop() (types.Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return types.Target{}, false
	}
	t := f.queue[0]
	f.queue = f.queue[1:]
	return t, true
}

func (f *frontier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
