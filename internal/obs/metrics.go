package obs

import "sync/atomic"

// Metrics collects lightweight counters for the execution pipeline.
// All methods are safe on a nil receiver so call sites never need guards.
type Metrics struct {
	enqueuedJobs  uint64
	completedJobs uint64
	retriedJobs   uint64
	deadJobs      uint64

	publishedEvents uint64
	publishFailures uint64
	droppedEvents   uint64

	deliveredEvents  uint64
	deliveryFailures uint64
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	EnqueuedJobs  uint64
	CompletedJobs uint64
	RetriedJobs   uint64
	DeadJobs      uint64

	PublishedEvents uint64
	PublishFailures uint64
	DroppedEvents   uint64

	DeliveredEvents  uint64
	DeliveryFailures uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) JobEnqueued() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.enqueuedJobs, 1)
}

func (m *Metrics) JobCompleted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.completedJobs, 1)
}

func (m *Metrics) JobRetried() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.retriedJobs, 1)
}

func (m *Metrics) JobDead() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deadJobs, 1)
}

func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.publishedEvents, 1)
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.publishFailures, 1)
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.droppedEvents, 1)
}

func (m *Metrics) EventDelivered() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deliveredEvents, 1)
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deliveryFailures, 1)
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		EnqueuedJobs:     atomic.LoadUint64(&m.enqueuedJobs),
		CompletedJobs:    atomic.LoadUint64(&m.completedJobs),
		RetriedJobs:      atomic.LoadUint64(&m.retriedJobs),
		DeadJobs:         atomic.LoadUint64(&m.deadJobs),
		PublishedEvents:  atomic.LoadUint64(&m.publishedEvents),
		PublishFailures:  atomic.LoadUint64(&m.publishFailures),
		DroppedEvents:    atomic.LoadUint64(&m.droppedEvents),
		DeliveredEvents:  atomic.LoadUint64(&m.deliveredEvents),
		DeliveryFailures: atomic.LoadUint64(&m.deliveryFailures),
	}
}
