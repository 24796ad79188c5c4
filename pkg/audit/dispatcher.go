package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DispatcherConfig tunes the dispatcher queue.
type DispatcherConfig struct {
	BufferSize int
	// OnDrop is called for every event dropped because the queue is full.
	OnDrop func(Event)
}

// Dispatcher delivers events to a Sink from a single background worker.
type Dispatcher struct {
	sink      Sink
	log       logrus.FieldLogger
	onDrop    func(Event)
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	now       func() time.Time
}

// NewDispatcher starts the worker. Call Close to flush and stop it.
func NewDispatcher(sink Sink, log logrus.FieldLogger, cfg DispatcherConfig) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	d := &Dispatcher{
		sink:   sink,
		log:    log,
		onDrop: cfg.OnDrop,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.write(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.write(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("audit sink panicked")
		}
	}()

	if err := d.sink.Write(context.Background(), event); err != nil {
		d.log.WithError(err).WithField("event_type", event.Type).Warn("Failed to write audit event")
	}
}

// Emit queues event, dropping it when the queue is full or the dispatcher is closed.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	select {
	case d.ch <- event:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop(event)
		}
	}
}

// Close stops accepting events, drains the queue and waits for the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
