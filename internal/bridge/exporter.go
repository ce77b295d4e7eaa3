package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/kafka"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/mqtt"
)

const (
	// DefaultBuffer is the export queue length used when none is given.
	DefaultBuffer = 1024

	// maxBatch bounds how many queued events go to Kafka in one write.
	maxBatch = 100

	kafkaTimeout = 5 * time.Second
)

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTPublisher publishes raw payloads. *mqtt.Client satisfies it.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// KafkaPublisher writes keyed records. *kafka.Producer satisfies it.
type KafkaPublisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// EventSource is where the exporter takes events from.
type EventSource interface {
	SubscribeAll(h eventbus.Handler) eventbus.Subscription
}

// Envelope is the JSON document written for each exported event.
type Envelope struct {
	Event   eventbus.Name `json:"event"`
	Source  string        `json:"source,omitempty"`
	Time    time.Time     `json:"time"`
	Payload any           `json:"payload,omitempty"`
}

// ExporterConfig holds exporter settings. Zero fields select defaults.
type ExporterConfig struct {
	Buffer int
	QoS    byte

	// Events limits export to the named events. Empty exports everything.
	Events []eventbus.Name
}

// ExporterStats counts exporter activity.
type ExporterStats struct {
	Exported int64 `json:"exported"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// Exporter forwards bus events to MQTT and Kafka.
//
// Bus handlers run under the runtime lock, so Handle only enqueues. A single
// worker encodes and publishes. When the queue is full the event is dropped
// and counted.
type Exporter struct {
	mqtt  MQTTPublisher
	kafka KafkaPublisher
	qos   byte
	allow map[eventbus.Name]bool

	queue  chan eventbus.Event
	done   chan struct{}
	logger Logger

	mu      sync.RWMutex
	started bool
	closed  bool

	exported atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewExporter creates an exporter. Either sink may be nil, not both.
func NewExporter(cfg ExporterConfig, mq MQTTPublisher, kp KafkaPublisher) (*Exporter, error) {
	if mq == nil && kp == nil {
		return nil, ErrNoSink
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}

	var allow map[eventbus.Name]bool
	if len(cfg.Events) > 0 {
		allow = make(map[eventbus.Name]bool, len(cfg.Events))
		for _, name := range cfg.Events {
			allow[name] = true
		}
	}

	return &Exporter{
		mqtt:   mq,
		kafka:  kp,
		qos:    cfg.QoS,
		allow:  allow,
		queue:  make(chan eventbus.Event, cfg.Buffer),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger. Call before Start.
func (e *Exporter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// Attach subscribes the exporter to every event on src.
func (e *Exporter) Attach(src EventSource) eventbus.Subscription {
	return src.SubscribeAll(e.Handle)
}

// Handle enqueues ev without blocking.
func (e *Exporter) Handle(ev eventbus.Event) {
	if e.allow != nil && !e.allow[ev.Name] {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.queue <- ev:
	default:
		if e.dropped.Add(1) == 1 {
			e.logger.Warn("event export queue full, dropping", "event", ev.Name)
		}
	}
}

// Start runs the export worker. It returns immediately.
func (e *Exporter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	go e.run()
}

// Stop closes the queue and waits for queued events to be exported.
func (e *Exporter) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	started := e.started
	close(e.queue)
	e.mu.Unlock()

	if started {
		<-e.done
	}
}

// Stats returns the exporter counters.
func (e *Exporter) Stats() ExporterStats {
	return ExporterStats{
		Exported: e.exported.Load(),
		Dropped:  e.dropped.Load(),
		Failed:   e.failed.Load(),
	}
}

func (e *Exporter) run() {
	defer close(e.done)

	batch := make([]eventbus.Event, 0, maxBatch)
	for ev := range e.queue {
		batch = append(batch[:0], ev)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-e.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		e.export(batch)
	}
}

func (e *Exporter) export(batch []eventbus.Event) {
	records := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		payload, err := json.Marshal(Envelope{
			Event:   ev.Name,
			Source:  ev.Source,
			Time:    ev.Time,
			Payload: ev.Payload,
		})
		if err != nil {
			e.failed.Add(1)
			e.logger.Error("encoding event for export", "event", ev.Name, "error", err)
			continue
		}

		if e.mqtt != nil {
			if err := e.mqtt.Publish(mqtt.Topics{}.Event(string(ev.Name)), payload, e.qos, false); err != nil {
				e.failed.Add(1)
				e.logger.Warn("exporting event to MQTT", "event", ev.Name, "error", err)
			}
		}
		records = append(records, kafka.Message{
			Key:     EventKey(ev),
			Value:   payload,
			Headers: map[string]string{"event": string(ev.Name)},
			Time:    ev.Time,
		})
	}

	if e.kafka != nil && len(records) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), kafkaTimeout)
		err := e.kafka.Publish(ctx, records...)
		cancel()
		if err != nil {
			e.failed.Add(int64(len(records)))
			e.logger.Warn("exporting events to Kafka", "count", len(records), "error", err)
		}
	}

	e.exported.Add(int64(len(records)))
}

// EventKey returns the partition key for an event: the ID of the entity it
// is about, or the event name when there is none.
func EventKey(ev eventbus.Event) string {
	switch p := ev.Payload.(type) {
	case eventbus.NodeEvent:
		return p.NodeID
	case eventbus.SignalEvent:
		return p.Signal.Source
	case eventbus.RuleEvent:
		return p.RuleID
	case eventbus.LoopEvent:
		return p.LoopID
	case eventbus.AlarmEvent:
		return p.AlarmID
	case eventbus.InterlockEvent:
		return p.InterlockID
	case eventbus.EmergencyEvent:
		if p.EStopID != "" {
			return p.EStopID
		}
	case eventbus.PermitEvent:
		return p.PermitID
	case eventbus.RemoteSiteEvent:
		return p.SiteID
	}
	return string(ev.Name)
}
