package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
)

const (
	defaultQueueSize = 64
	writeTimeout     = 5 * time.Second
)

// Logger is the logging surface used by the persister.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateWriter is the subset of StateRepository the persister needs.
type StateWriter interface {
	SaveDeviceState(ctx context.Context, applianceID string, s purelink.DeviceState) error
	SaveSensorReading(ctx context.Context, applianceID string, s purelink.SensorReading) error
}

type stateWrite struct {
	applianceID string
	device      *purelink.DeviceState
	sensor      *purelink.SensorReading
}

// Persister writes engine model updates to the state repository on its
// own goroutine. It implements purelink.Observer. Engine callbacks never
// block: when the queue is full the update is dropped and counted.
type Persister struct {
	writer StateWriter
	logger Logger
	queue  chan stateWrite

	dropped atomic.Int64
	written atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

var _ purelink.Observer = (*Persister)(nil)

// NewPersister creates a persister. queueSize <= 0 selects the default.
func NewPersister(writer StateWriter, queueSize int, logger Logger) *Persister {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Persister{
		writer: writer,
		logger: logger,
		queue:  make(chan stateWrite, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the writer goroutine. Safe to call more than once.
func (p *Persister) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

// Stop drains queued writes and stops the writer.
func (p *Persister) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

// Dropped returns how many updates were discarded because the queue was full.
func (p *Persister) Dropped() int64 { return p.dropped.Load() }

// Written returns how many updates reached the repository.
func (p *Persister) Written() int64 { return p.written.Load() }

// OnSensor implements purelink.Observer.
func (p *Persister) OnSensor(applianceID string, r purelink.SensorReading) {
	p.enqueue(stateWrite{applianceID: applianceID, sensor: &r})
}

// OnDevice implements purelink.Observer.
func (p *Persister) OnDevice(applianceID string, s purelink.DeviceState) {
	p.enqueue(stateWrite{applianceID: applianceID, device: &s})
}

// OnLink implements purelink.Observer. Link state is not persisted.
func (p *Persister) OnLink(string, purelink.LinkState) {}

func (p *Persister) enqueue(w stateWrite) {
	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.queue <- w:
	default:
		p.dropped.Add(1)
		p.logger.Warn("state persistence queue full, dropping update",
			"appliance_id", w.applianceID,
			"dropped", p.dropped.Load(),
		)
	}
}

func (p *Persister) run() {
	defer p.wg.Done()
	for {
		select {
		case w := <-p.queue:
			p.write(w)
		case <-p.done:
			for {
				select {
				case w := <-p.queue:
					p.write(w)
				default:
					return
				}
			}
		}
	}
}

func (p *Persister) write(w stateWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch {
	case w.device != nil:
		err = p.writer.SaveDeviceState(ctx, w.applianceID, *w.device)
	case w.sensor != nil:
		err = p.writer.SaveSensorReading(ctx, w.applianceID, *w.sensor)
	}
	if err != nil {
		p.logger.Error("failed to persist appliance state",
			"appliance_id", w.applianceID,
			"error", err,
		)
		return
	}
	p.written.Add(1)
}
