package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
)

const defaultInterval = time.Minute

// SessionCloser ends sessions by id
type SessionCloser interface {
	Close(ctx context.Context, id string) error
}

// Reaper closes sessions whose token expired without the client closing
// them. Sessions come out of the queue in expiry order.
type Reaper struct {
	queue    *ExpiryQueue
	items    map[string]*QueueItem
	mu       sync.Mutex
	closer   SessionCloser
	interval time.Duration
	now      func() time.Time
	logger   *logging.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewReaper creates a reaper that checks for expired sessions every interval
func NewReaper(closer SessionCloser, interval time.Duration, logger *logging.Logger) *Reaper {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Reaper{
		queue:    &ExpiryQueue{},
		items:    make(map[string]*QueueItem),
		closer:   closer,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins the reaper loop
func (r *Reaper) Start() {
	go r.loop()
	r.logger.Info("session reaper started")
}

// Stop stops the reaper and waits for the loop to exit
func (r *Reaper) Stop() {
	r.cancel()
	<-r.done
	r.logger.Info("session reaper stopped")
}

// Schedule closes the session id once expiresAt has passed. Scheduling an id
// again moves its expiry.
func (r *Reaper) Schedule(id string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item, ok := r.items[id]; ok {
		item.ExpiresAt = expiresAt
		heap.Fix(r.queue, item.Index)
		return
	}

	item := &QueueItem{SessionID: id, ExpiresAt: expiresAt}
	heap.Push(r.queue, item)
	r.items[id] = item
}

// Cancel forgets the session id, for sessions closed by their client
func (r *Reaper) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item, ok := r.items[id]; ok {
		heap.Remove(r.queue, item.Index)
		delete(r.items, id)
	}
}

// Pending returns the number of scheduled sessions
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

func (r *Reaper) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Reap(r.ctx)
		}
	}
}

// Reap closes every session that has expired and returns how many it closed
func (r *Reaper) Reap(ctx context.Context) int {
	expired := r.popExpired(r.now())

	closed := 0
	for _, id := range expired {
		if err := r.closer.Close(ctx, id); err != nil {
			r.logger.WithSession(id).WithError(err).Warn("failed to close expired session")
			continue
		}
		closed++
	}

	if closed > 0 {
		r.logger.Infof("closed %d expired sessions", closed)
	}
	return closed
}

func (r *Reaper) popExpired(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for r.queue.Len() > 0 {
		next := (*r.queue)[0]
		if next.ExpiresAt.After(now) {
			break
		}
		heap.Pop(r.queue)
		delete(r.items, next.SessionID)
		expired = append(expired, next.SessionID)
	}
	return expired
}

// ExpiryQueue orders sessions by expiry, earliest first
type ExpiryQueue []*QueueItem

// QueueItem represents a session in the expiry queue
type QueueItem struct {
	SessionID string
	ExpiresAt time.Time
	Index     int
}

func (pq ExpiryQueue) Len() int { return len(pq) }

func (pq ExpiryQueue) Less(i, j int) bool {
	return pq[i].ExpiresAt.Before(pq[j].ExpiresAt)
}

func (pq ExpiryQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *ExpiryQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*QueueItem)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *ExpiryQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[0 : n-1]
	return item
}
