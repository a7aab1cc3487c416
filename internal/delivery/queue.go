package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/relay/internal/observability"
)

var (
	// ErrClosed is returned by Enqueue after the queue has been shut down.
	ErrClosed = errors.New("delivery: queue is closed")
	// ErrQueueFull is returned when a conversation's backlog is at capacity.
	ErrQueueFull = errors.New("delivery: conversation queue is full")
)

// Sender delivers one outbound segment to a platform adapter.
type Sender interface {
	Send(ctx context.Context, conversationID, content string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, conversationID, content string) error

func (f SenderFunc) Send(ctx context.Context, conversationID, content string) error {
	return f(ctx, conversationID, content)
}

// Item is one outbound segment. Seq is assigned on enqueue and is strictly
// increasing within a conversation. A zero Delay means compute from pacing;
// a negative Delay sends immediately.
type Item struct {
	Seq     int64
	Content string
	Delay   time.Duration
}

// Options configures the delivery queue.
type Options struct {
	// Pacing shapes the pre-send delay per segment.
	Pacing Pacing

	// SegmentLimit is the maximum characters per outbound segment.
	// Default: DefaultSegmentLimit
	SegmentLimit int

	// IdleWindow is how long a conversation's worker may sit idle before
	// the sweep retires it.
	// Default: 30s
	IdleWindow time.Duration

	// SweepInterval is how often idle workers are retired.
	// Default: 5m
	SweepInterval time.Duration

	// Depth bounds each conversation's backlog.
	// Default: 128
	Depth int

	// SendTimeout bounds one adapter send.
	// Default: 30s
	SendTimeout time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics

	// OnRetire is called after the sweep tears down an idle conversation's
	// worker, letting callers release per-conversation state of their own.
	OnRetire func(conversationID string)
}

// DefaultOptions returns the standard queue configuration.
func DefaultOptions() Options {
	return Options{
		Pacing:        DefaultPacing(),
		SegmentLimit:  DefaultSegmentLimit,
		IdleWindow:    30 * time.Second,
		SweepInterval: 5 * time.Minute,
		Depth:         128,
		SendTimeout:   30 * time.Second,
	}
}

func (o Options) sanitized() Options {
	if o.SegmentLimit <= 0 {
		o.SegmentLimit = DefaultSegmentLimit
	}
	if o.IdleWindow <= 0 {
		o.IdleWindow = 30 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Minute
	}
	if o.Depth <= 0 {
		o.Depth = 128
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type worker struct {
	conversationID string
	items          chan Item
	stop           chan struct{}
	done           chan struct{}
	seq            atomic.Int64
	lastActive     atomic.Int64 // unix nanos
	inFlight       atomic.Bool
}

func (w *worker) touch() {
	w.lastActive.Store(time.Now().UnixNano())
}

func (w *worker) idleSince(now time.Time, window time.Duration) bool {
	if len(w.items) > 0 || w.inFlight.Load() {
		return false
	}
	return now.Sub(time.Unix(0, w.lastActive.Load())) > window
}

// Queue is the per-conversation delivery registry. Workers are created on
// first enqueue and retired by a periodic sweep once idle, bounding memory
// across long deployments with many transient conversations.
//
// Thread Safety:
// Queue is safe for concurrent use.
type Queue struct {
	sender Sender
	opts   Options

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a delivery queue and starts its sweep loop.
func New(sender Sender, opts Options) *Queue {
	q := &Queue{
		sender:    sender,
		opts:      opts.sanitized(),
		workers:   make(map[string]*worker),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go q.sweepLoop()
	return q
}

// Enqueue segments text and appends the segments, in order, to the
// conversation's queue. The conversation's worker is created on first use.
func (q *Queue) Enqueue(conversationID, text string) error {
	segments := Segment(text, q.opts.SegmentLimit)
	if len(segments) == 0 {
		return nil
	}
	items := make([]Item, len(segments))
	for i, seg := range segments {
		items[i] = Item{Content: seg}
	}
	return q.enqueue(conversationID, items)
}

// EnqueueItem appends one pre-built item, bypassing segmentation. Used for
// segments that carry an explicit pacing delay.
func (q *Queue) EnqueueItem(conversationID string, item Item) error {
	return q.enqueue(conversationID, []Item{item})
}

func (q *Queue) enqueue(conversationID string, items []Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	w, ok := q.workers[conversationID]
	if !ok {
		w = &worker{
			conversationID: conversationID,
			items:          make(chan Item, q.opts.Depth),
			stop:           make(chan struct{}),
			done:           make(chan struct{}),
		}
		w.touch()
		q.workers[conversationID] = w
		go q.run(w)
	}

	for i := range items {
		items[i].Seq = w.seq.Add(1)
		select {
		case w.items <- items[i]:
		default:
			return ErrQueueFull
		}
	}
	w.touch()
	return nil
}

// Pending returns the number of queued items for a conversation, not
// counting one that may be mid-send.
func (q *Queue) Pending(conversationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.workers[conversationID]; ok {
		return len(w.items)
	}
	return 0
}

// Sweep retires workers that have been idle beyond the window. It is run
// periodically by the sweep loop and exposed for scheduled maintenance.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	now := time.Now()
	var retired []string
	for id, w := range q.workers {
		if w.idleSince(now, q.opts.IdleWindow) {
			close(w.stop)
			delete(q.workers, id)
			retired = append(retired, id)
		}
	}
	q.mu.Unlock()

	if len(retired) > 0 {
		q.opts.Logger.Debug("retired idle delivery workers", "count", len(retired))
	}
	if q.opts.OnRetire != nil {
		for _, id := range retired {
			q.opts.OnRetire(id)
		}
	}
	return len(retired)
}

// Close stops all workers and waits for in-flight sends to finish. Items
// queued but not yet dequeued are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	workers := make([]*worker, 0, len(q.workers))
	for id, w := range q.workers {
		close(w.stop)
		workers = append(workers, w)
		delete(q.workers, id)
	}
	q.mu.Unlock()

	close(q.sweepStop)
	<-q.sweepDone
	for _, w := range workers {
		<-w.done
	}
}

func (q *Queue) sweepLoop() {
	defer close(q.sweepDone)
	ticker := time.NewTicker(q.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.sweepStop:
			return
		case <-ticker.C:
			q.Sweep()
		}
	}
}

// run drains one conversation's queue in strict FIFO order. An item that
// has been dequeued is always sent, even during shutdown; only items still
// queued can be dropped.
func (q *Queue) run(w *worker) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case item := <-w.items:
			w.inFlight.Store(true)
			q.deliver(w, item)
			w.inFlight.Store(false)
			w.touch()
		}
	}
}

func (q *Queue) deliver(w *worker, item Item) {
	delay := item.Delay
	if delay == 0 {
		delay = q.opts.Pacing.Delay(item.Content)
	}
	if q.opts.Metrics != nil {
		q.opts.Metrics.DeliveryDelay.Observe(delay.Seconds())
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.opts.SendTimeout)
	defer cancel()
	if err := q.sender.Send(ctx, w.conversationID, item.Content); err != nil {
		q.opts.Logger.Error("outbound send failed",
			"conversation_id", w.conversationID,
			"seq", item.Seq,
			"error", err)
		return
	}
	if q.opts.Metrics != nil {
		q.opts.Metrics.Deliveries.Inc()
	}
}
