package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/safety"
)

// DefaultBuffer is the journal queue length when none is given.
const DefaultBuffer = 256

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// JournaledEvents are the events the journal records.
var JournaledEvents = []eventbus.Name{
	eventbus.AlarmRaised,
	eventbus.SafetyInterlockTriggered,
	eventbus.EmergencyStopActivated,
	eventbus.EmergencyShutdownCompleted,
	eventbus.EmergencyModeReset,
	eventbus.PermitExpired,
	eventbus.RuleTriggered,
	eventbus.LoopDisabled,
	eventbus.RemoteSiteStatusChanged,
}

// Logger is the logging interface used by the journal.
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

// Subscriber is the part of the event source the journal needs. Both
// *eventbus.Bus and *network.Runtime satisfy it.
type Subscriber interface {
	Subscribe(name eventbus.Name, h eventbus.Handler) eventbus.Subscription
}

// Journal appends safety, alarm and automation events to a Repository.
//
// Events arrive on the publisher's goroutine, which holds the runtime lock,
// so Record only enqueues. A single worker performs the inserts. When the
// queue is full the entry is dropped and counted.
type Journal struct {
	repo   Repository
	queue  chan *AuditLog
	logger Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewJournal creates a journal writing to repo. Call Start before events
// flow.
func NewJournal(repo Repository, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Journal{
		repo:   repo,
		queue:  make(chan *AuditLog, buffer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (j *Journal) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	j.logger = logger
}

// Attach subscribes Record to every journaled event.
func (j *Journal) Attach(src Subscriber) []eventbus.Subscription {
	subs := make([]eventbus.Subscription, 0, len(JournaledEvents))
	for _, name := range JournaledEvents {
		subs = append(subs, src.Subscribe(name, j.Record))
	}
	return subs
}

// Start launches the writer.
func (j *Journal) Start() {
	j.wg.Add(1)
	go j.run()
}

func (j *Journal) run() {
	defer j.wg.Done()
	for entry := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := j.repo.Create(ctx, entry)
		cancel()
		if err != nil {
			j.failed.Add(1)
			j.logger.Error("audit write failed", "action", entry.Action, "error", err)
			continue
		}
		j.written.Add(1)
	}
}

// Stop drains the queue and waits for the writer. Events recorded after
// Stop are discarded.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	j.wg.Wait()
}

// Record converts ev to an audit entry and queues it. Events the journal
// does not know are ignored.
func (j *Journal) Record(ev eventbus.Event) {
	entry, ok := Entry(ev)
	if !ok {
		return
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.queue <- entry:
	default:
		if j.dropped.Add(1) == 1 {
			j.logger.Warn("audit queue full, dropping entries", "action", entry.Action)
		}
	}
}

// RunRetention prunes entries older than keep once per interval until ctx
// ends. A non-positive keep disables pruning.
func (j *Journal) RunRetention(ctx context.Context, keep, interval time.Duration) {
	if keep <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		j.prune(ctx, keep)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (j *Journal) prune(ctx context.Context, keep time.Duration) {
	pctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	n, err := j.repo.Prune(pctx, time.Now().Add(-keep))
	switch {
	case err != nil:
		j.logger.Error("audit retention failed", "error", err)
	case n > 0:
		j.logger.Info("audit entries pruned", "count", n, "keep", keep)
	}
}

// Stats reports written, dropped and failed entry counts.
func (j *Journal) Stats() (written, dropped, failed uint64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}

// Entry maps a bus event onto an audit entry.
func Entry(ev eventbus.Event) (*AuditLog, bool) {
	log := &AuditLog{
		Source:    ev.Source,
		CreatedAt: ev.Time,
		Details:   details(ev.Payload),
	}

	switch p := ev.Payload.(type) {
	case eventbus.AlarmEvent:
		log.Action, log.EntityType, log.EntityID = "alarm_raised", "alarm", p.AlarmID
		log.Severity = p.Severity
	case eventbus.InterlockEvent:
		log.Action, log.EntityType, log.EntityID = "interlock_triggered", "interlock", p.InterlockID
		log.Severity = eventbus.SeverityWarning
		if p.Type == string(safety.InterlockCritical) {
			log.Severity = eventbus.SeverityCritical
		}
	case eventbus.EmergencyEvent:
		log.EntityType, log.EntityID = "emergency_stop", p.EStopID
		switch ev.Name {
		case eventbus.EmergencyStopActivated:
			log.Action, log.Severity = "emergency_stop_activated", eventbus.SeverityCritical
		case eventbus.EmergencyShutdownCompleted:
			log.Action, log.Severity = "emergency_shutdown_completed", eventbus.SeverityCritical
		case eventbus.EmergencyModeReset:
			log.Action, log.Severity = "emergency_mode_reset", eventbus.SeverityInfo
			log.EntityType = "safety"
		default:
			return nil, false
		}
	case eventbus.PermitEvent:
		log.Action, log.EntityType, log.EntityID = "permit_expired", "permit", p.PermitID
		log.Severity = eventbus.SeverityInfo
	case eventbus.RuleEvent:
		log.Action, log.EntityType, log.EntityID = "rule_triggered", "rule", p.RuleID
		log.Severity = eventbus.SeverityInfo
		if !p.Success {
			log.Severity = eventbus.SeverityWarning
		}
	case eventbus.LoopEvent:
		if ev.Name != eventbus.LoopDisabled {
			return nil, false
		}
		log.Action, log.EntityType, log.EntityID = "loop_disabled", "loop", p.LoopID
		log.Severity = eventbus.SeverityWarning
	case eventbus.RemoteSiteEvent:
		log.Action, log.EntityType, log.EntityID = "remote_status_changed", "remote_site", p.SiteID
		log.Severity = eventbus.SeverityInfo
		if p.Status != string(remote.StatusOnline) {
			log.Severity = eventbus.SeverityWarning
		}
	default:
		return nil, false
	}

	if log.Source == "" {
		log.Source = "system"
	}
	return log, true
}

// details flattens a payload struct into a JSON object map.
func details(payload any) map[string]any {
	if payload == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return nil
	}
	return m
}
