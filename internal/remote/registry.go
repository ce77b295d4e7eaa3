package remote

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/controlnet-core/internal/arena"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/remote/codec"
)

// Defaults.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultTopicPrefix = "controlnet/remote"

	// DefaultBuffer is the outbox length used when none is given.
	DefaultBuffer = 256

	// offlineFactor is how many timeouts pass before a site is OFFLINE.
	offlineFactor = 3

	qosAtLeastOnce byte = 1
)

// Status is the observed state of a remote site.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusTimeout Status = "TIMEOUT"
	StatusOffline Status = "OFFLINE"
)

// Site is a remote collaborator.
type Site struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Protocol          codec.Protocol `json:"protocol"`
	Address           string         `json:"address"`
	LastCommunication time.Time      `json:"last_communication"`
	Status            Status         `json:"status"`
	MessagesSent      int64          `json:"messages_sent"`
	SendErrors        int64          `json:"send_errors"`

	sequence uint16
	counts   *siteCounts
}

// siteCounts is shared with the outbox worker, which records delivery
// results outside the runtime lock.
type siteCounts struct {
	sent   atomic.Int64
	failed atomic.Int64
}

func (s *Site) view() Site {
	v := *s
	v.MessagesSent = s.counts.sent.Load()
	v.SendErrors = s.counts.failed.Load()
	v.counts = nil
	return v
}

// Logger defines the logging interface used by the registry.
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

// Transport delivers encoded frames. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher is the part of the event bus the registry needs.
type Publisher interface {
	Publish(ev eventbus.Event)
}

// Config holds registry settings.
type Config struct {
	Timeout     time.Duration
	TopicPrefix string
	Buffer      int
}

// outbound is an encoded frame waiting for the transport.
type outbound struct {
	siteID    string
	command   codec.Command
	topic     string
	frame     []byte
	transport Transport
	counts    *siteCounts
	logger    Logger
}

// Registry holds the remote sites.
//
// Site state is guarded by the network runtime, which serialises every call.
// Once Start has run, frames are encoded under that lock and published by a
// single outbox worker, so a slow broker never stalls the runtime. When the
// outbox is full the frame is dropped and counted as a send error.
type Registry struct {
	sites     *arena.Keyed[*Site]
	cfg       Config
	transport Transport
	clock     clock.Clock
	bus       Publisher
	logger    Logger

	queue   chan outbound
	done    chan struct{}
	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewRegistry creates an empty registry. transport may be nil, in which case
// sends fail with ErrNoTransport.
func NewRegistry(cfg Config, clk clock.Clock, transport Transport, bus Publisher) *Registry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Registry{
		sites:     arena.NewKeyed[*Site](),
		cfg:       cfg,
		transport: transport,
		clock:     clk,
		bus:       bus,
		logger:    noopLogger{},
		queue:     make(chan outbound, cfg.Buffer),
		done:      make(chan struct{}),
	}
}

// Start runs the outbox worker. It returns immediately. Until it is called,
// sends publish inline.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run()
}

// Stop closes the outbox and waits for queued frames to be published. Later
// sends publish inline.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	close(r.queue)
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetTransport replaces the transport.
func (r *Registry) SetTransport(t Transport) { r.transport = t }

// Add registers a site. It starts ONLINE as of now.
func (r *Registry) Add(site Site) error {
	if site.ID == "" {
		return fmt.Errorf("%w: site needs an id", ErrInvalidSite)
	}
	p, ok := codec.ParseProtocol(string(site.Protocol))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, site.Protocol)
	}
	s := &Site{
		ID:                site.ID,
		Name:              site.Name,
		Protocol:          p,
		Address:           site.Address,
		LastCommunication: r.clock.Now(),
		Status:            StatusOnline,
		counts:            &siteCounts{},
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if _, ok := r.sites.Add(s.ID, s); !ok {
		return fmt.Errorf("%w: site %s", ErrAlreadyRegistered, s.ID)
	}
	r.logger.Info("remote site added", "site_id", s.ID, "protocol", string(p), "address", s.Address)
	return nil
}

// Remove deletes a site. It returns false if absent.
func (r *Registry) Remove(id string) bool {
	_, ok := r.sites.Remove(id)
	return ok
}

// Heartbeat records communication from a site and brings it back ONLINE.
func (r *Registry) Heartbeat(id string) error {
	s, ok := r.sites.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, id)
	}
	s.LastCommunication = r.clock.Now()
	r.setStatus(s, StatusOnline)
	return nil
}

// CheckTimeouts re-derives every site's status from its last communication
// and returns the number of sites whose status changed.
func (r *Registry) CheckTimeouts() int {
	now := r.clock.Now()
	var changed []*Site
	var next []Status
	r.sites.Each(func(_ string, s *Site) bool {
		st := r.derive(now, s.LastCommunication)
		if st != s.Status {
			changed = append(changed, s)
			next = append(next, st)
		}
		return true
	})
	for i, s := range changed {
		r.setStatus(s, next[i])
	}
	return len(changed)
}

func (r *Registry) derive(now, last time.Time) Status {
	silent := now.Sub(last)
	switch {
	case silent < r.cfg.Timeout:
		return StatusOnline
	case silent < offlineFactor*r.cfg.Timeout:
		return StatusTimeout
	default:
		return StatusOffline
	}
}

func (r *Registry) setStatus(s *Site, st Status) {
	if s.Status == st {
		return
	}
	prev := s.Status
	s.Status = st
	if st == StatusOnline {
		r.logger.Info("remote site online", "site_id", s.ID, "previous", string(prev))
	} else {
		r.logger.Warn("remote site not responding", "site_id", s.ID, "status", string(st),
			"last_communication", s.LastCommunication)
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Name:   eventbus.RemoteSiteStatusChanged,
			Source: "remote",
			Time:   r.clock.Now(),
			Payload: eventbus.RemoteSiteEvent{
				SiteID:   s.ID,
				Protocol: string(s.Protocol),
				Previous: string(prev),
				Status:   string(st),
			},
		})
	}
}

// Send encodes msg with the site's protocol codec and publishes it on the
// site's command topic. The sequence number is assigned per site. With the
// outbox running, a nil error means the frame was queued; delivery failures
// are counted in the site's SendErrors.
func (r *Registry) Send(id string, msg codec.Message) error {
	s, ok := r.sites.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, id)
	}
	return r.send(s, msg)
}

func (r *Registry) send(s *Site, msg codec.Message) error {
	if r.transport == nil {
		return ErrNoTransport
	}
	c, err := codec.For(s.Protocol)
	if err != nil {
		return err
	}
	s.sequence++
	msg.Sequence = s.sequence
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.clock.Now()
	}
	frame, err := c.Encode(msg)
	if err != nil {
		s.counts.failed.Add(1)
		return fmt.Errorf("encoding %s for site %s: %w", msg.Command, s.ID, err)
	}

	out := outbound{
		siteID:    s.ID,
		command:   msg.Command,
		topic:     r.CommandTopic(s.ID),
		frame:     frame,
		transport: r.transport,
		counts:    s.counts,
		logger:    r.logger,
	}
	queued, err := r.enqueue(out)
	switch {
	case err != nil:
		s.counts.failed.Add(1)
		return fmt.Errorf("sending to site %s: %w", s.ID, err)
	case queued:
		return nil
	}
	return deliver(out)
}

// enqueue hands out to the worker. It reports false when the outbox is not
// running and the caller must deliver inline.
func (r *Registry) enqueue(out outbound) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.started || r.closed {
		return false, nil
	}
	select {
	case r.queue <- out:
		return true, nil
	default:
		return true, ErrOutboxFull
	}
}

func (r *Registry) run() {
	defer close(r.done)
	for out := range r.queue {
		if err := deliver(out); err != nil {
			out.logger.Error("remote send failed", "site_id", out.siteID, "command", out.command.String(), "error", err)
		}
	}
}

func deliver(out outbound) error {
	if err := out.transport.Publish(out.topic, out.frame, qosAtLeastOnce, false); err != nil {
		out.counts.failed.Add(1)
		return fmt.Errorf("sending to site %s: %w", out.siteID, err)
	}
	out.counts.sent.Add(1)
	return nil
}

// CommandTopic returns the topic commands for a site are published on.
func (r *Registry) CommandTopic(id string) string {
	return r.cfg.TopicPrefix + "/" + id + "/command"
}

// BroadcastEmergency sends an emergency-stop message to every registered
// site regardless of status and returns how many sends succeeded. With the
// outbox running that is the number of frames queued.
func (r *Registry) BroadcastEmergency(reason string) int {
	var all []*Site
	r.sites.Each(func(_ string, s *Site) bool {
		all = append(all, s)
		return true
	})
	sent := 0
	for _, s := range all {
		err := r.send(s, codec.Message{Command: codec.CommandEmergencyStop, Value: 1, Reason: reason})
		if err != nil {
			r.logger.Error("emergency broadcast failed", "site_id", s.ID, "error", err)
			continue
		}
		sent++
	}
	r.logger.Warn("emergency broadcast dispatched", "sites_notified", sent, "sites_total", len(all))
	return sent
}

// Site returns a copy of one site.
func (r *Registry) Site(id string) (Site, error) {
	s, ok := r.sites.Get(id)
	if !ok {
		return Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, id)
	}
	return s.view(), nil
}

// Sites returns copies of every site in registration order.
func (r *Registry) Sites() []Site {
	out := make([]Site, 0, r.sites.Len())
	r.sites.Each(func(_ string, s *Site) bool {
		out = append(out, s.view())
		return true
	})
	return out
}

// Count returns the number of sites.
func (r *Registry) Count() int { return r.sites.Len() }

// OnlineCount returns the number of ONLINE sites.
func (r *Registry) OnlineCount() int {
	n := 0
	r.sites.Each(func(_ string, s *Site) bool {
		if s.Status == StatusOnline {
			n++
		}
		return true
	})
	return n
}

// Shutdown stops the outbox, waiting for queued frames, and drops every site.
func (r *Registry) Shutdown() {
	r.Stop()
	r.sites.Clear()
}
