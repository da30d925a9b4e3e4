package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue has no room; the message is dropped.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrClosed is returned by Enqueue after Shutdown.
	ErrClosed = errors.New("notify: dispatcher closed")
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 256
	defaultSendTimeout = 15 * time.Second
)

// Dispatcher is a bounded background queue in front of the gateways. Enqueue
// never blocks; workers send each message with its own timeout.
type Dispatcher struct {
	gateways    map[Channel]Gateway
	fallback    Gateway
	queue       chan Message
	workers     int
	sendTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher returns a Dispatcher. Zero values select defaults (4 workers,
// 256 queued messages, 15s per send). fallback handles channels with no
// registered gateway; nil means LogSink.
func NewDispatcher(workers, queueSize int, sendTimeout time.Duration, fallback Gateway) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if fallback == nil {
		fallback = LogSink{}
	}
	return &Dispatcher{
		gateways:    make(map[Channel]Gateway),
		fallback:    fallback,
		queue:       make(chan Message, queueSize),
		workers:     workers,
		sendTimeout: sendTimeout,
	}
}

// Register sets the gateway for ch. Call before Start.
func (d *Dispatcher) Register(ch Channel, g Gateway) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gateways[ch] = g
}

// Start launches the workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Enqueue schedules msg for delivery and returns immediately.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		log.Printf("notify: queue full, dropping %s message to %s", msg.Channel, MaskRecipient(msg.Recipient))
		return ErrQueueFull
	}
}

// Shutdown stops accepting messages and waits for queued ones to be sent or ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	d.mu.RLock()
	g, ok := d.gateways[msg.Channel]
	d.mu.RUnlock()
	if !ok {
		g = d.fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notify: gateway panic for %s message: %v", msg.Channel, r)
		}
	}()
	if err := g.Send(ctx, msg); err != nil {
		log.Printf("notify: send %s to %s failed: %v", msg.Channel, MaskRecipient(msg.Recipient), err)
	}
}
