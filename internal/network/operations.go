package network

import (
	"time"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/control"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/safety"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// ─── Nodes ──────────────────────────────────────────────────────────

// RegisterControlNode adds a node to the network.
//
// Returns:
//   - ErrCapacityExceeded when the registry is full
//   - ErrAlreadyRegistered for a duplicate id
//   - ErrUnknownType for an unknown node type
func (rt *Runtime) RegisterControlNode(id string, typ node.Type, meta node.Metadata) (node.Node, error) {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return node.Node{}, ErrClosed
	}
	n, err := rt.nodes.Register(id, typ, meta)
	if err != nil {
		return node.Node{}, err
	}
	return *n, nil
}

// UnregisterControlNode removes a node. It returns false if the node was not
// registered.
func (rt *Runtime) UnregisterControlNode(id string) bool {
	unlock := rt.lock()
	defer unlock()
	return rt.nodes.Unregister(id)
}

// Node returns a copy of one node.
func (rt *Runtime) Node(id string) (node.Node, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n, err := rt.nodes.Get(id)
	if err != nil {
		return node.Node{}, err
	}
	return *n, nil
}

// Nodes returns copies of every node.
func (rt *Runtime) Nodes() []node.Node {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.nodes.List()
}

// ─── Signals ────────────────────────────────────────────────────────

// ProcessControlSignal routes a signal from a registered node through the
// rule engine. Signals queued by rule actions are routed before it returns.
//
// Returns:
//   - ErrInvalidSignal for an empty type
//   - ErrUnknownNode if source is not registered
//   - ErrEmergencyActive in emergency mode unless source has SYSTEM priority
//   - ErrRateLimited when source has used its budget
func (rt *Runtime) ProcessControlSignal(typ string, data map[string]any, source string, opts routing.Options) (signal.Signal, error) {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return signal.Signal{}, ErrClosed
	}
	return rt.router.Process(typ, data, source, opts)
}

// ─── Rules ──────────────────────────────────────────────────────────

// AddAutomationRule registers an enabled rule with default settings.
func (rt *Runtime) AddAutomationRule(id string, cond automation.Condition, act automation.Action) error {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return ErrClosed
	}
	return rt.rules.AddRule(id, cond, act)
}

// RegisterRule registers a rule from a full definition.
func (rt *Runtime) RegisterRule(id string, def automation.Definition) error {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return ErrClosed
	}
	return rt.rules.RegisterRule(id, def)
}

// RegisterRuleSpec registers a rule from its declarative form.
func (rt *Runtime) RegisterRuleSpec(spec automation.RuleSpec) error {
	def, err := spec.Definition()
	if err != nil {
		return err
	}
	return rt.RegisterRule(spec.ID, def)
}

// RemoveRule deletes a rule. It returns false if absent.
func (rt *Runtime) RemoveRule(id string) bool {
	unlock := rt.lock()
	defer unlock()
	return rt.rules.RemoveRule(id)
}

// EnableRule enables a rule. Enabling an enabled rule is a no-op.
func (rt *Runtime) EnableRule(id string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.rules.EnableRule(id)
}

// DisableRule disables a rule. Disabling a disabled rule is a no-op.
func (rt *Runtime) DisableRule(id string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.rules.DisableRule(id)
}

// EnableRuleGroup enables every rule in group and returns how many changed.
func (rt *Runtime) EnableRuleGroup(group string) int {
	unlock := rt.lock()
	defer unlock()
	return rt.rules.EnableGroup(group)
}

// DisableRuleGroup disables every rule in group and returns how many changed.
func (rt *Runtime) DisableRuleGroup(group string) int {
	unlock := rt.lock()
	defer unlock()
	return rt.rules.DisableGroup(group)
}

// RuleGroups lists the rule groups in use.
func (rt *Runtime) RuleGroups() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.rules.Groups()
}

// ResetRule zeroes a rule's metrics and cooldown.
func (rt *Runtime) ResetRule(id string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.rules.ResetRule(id)
}

// RegisterScript makes fn available to run-script actions under name.
func (rt *Runtime) RegisterScript(name string, fn automation.Script) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.rules.RegisterScript(name, fn)
}

// Rule returns a view of one rule.
func (rt *Runtime) Rule(id string) (automation.Info, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.rules.Rule(id)
}

// Rules returns a view of every rule in evaluation order.
func (rt *Runtime) Rules() []automation.Info {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.rules.Rules()
}

// ─── Loops ──────────────────────────────────────────────────────────

// RegisterLoop adds a control loop.
func (rt *Runtime) RegisterLoop(id string, def control.Definition) (control.Info, error) {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return control.Info{}, ErrClosed
	}
	return rt.loops.Register(id, def)
}

// RegisterLoopSpec adds a control loop from its declarative form, applying
// its tuning profile if it names one.
func (rt *Runtime) RegisterLoopSpec(spec control.LoopSpec) (control.Info, error) {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return control.Info{}, ErrClosed
	}
	if err := rt.registerLoopSpec(spec); err != nil {
		return control.Info{}, err
	}
	return rt.loops.Loop(spec.ID)
}

// UpdateLoop changes selected fields of a loop.
func (rt *Runtime) UpdateLoop(id string, u control.Update) (control.Info, error) {
	unlock := rt.lock()
	defer unlock()
	return rt.loops.Update(id, u)
}

// TuneLoop applies a named tuning profile to a loop.
func (rt *Runtime) TuneLoop(id, profile string) (control.Info, error) {
	unlock := rt.lock()
	defer unlock()
	return rt.loops.Tune(id, profile)
}

// EnableLoop re-enables a loop.
func (rt *Runtime) EnableLoop(id string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.loops.Enable(id)
}

// DisableLoop stops a loop from executing.
func (rt *Runtime) DisableLoop(id, reason string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.loops.Disable(id, reason)
}

// RemoveLoop deletes a loop. It returns false if absent.
func (rt *Runtime) RemoveLoop(id string) bool {
	unlock := rt.lock()
	defer unlock()
	return rt.loops.Remove(id)
}

// Loop returns a view of one loop.
func (rt *Runtime) Loop(id string) (control.Info, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.loops.Loop(id)
}

// Loops returns a view of every loop.
func (rt *Runtime) Loops() []control.Info {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.loops.Loops()
}

// LoopHistory returns a loop's recorded samples, oldest first.
func (rt *Runtime) LoopHistory(id string) ([]control.Sample, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.loops.History(id)
}

// TuningProfiles lists the profile names available per loop type.
func (rt *Runtime) TuningProfiles() map[control.LoopType][]string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.loops.Profiles()
}

// ─── Safety ─────────────────────────────────────────────────────────

// ActivateEmergencyStop runs the emergency cascade. Every loop is disabled
// with zero output before it returns.
func (rt *Runtime) ActivateEmergencyStop(id, reason string) (safety.ActivationReport, error) {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return safety.ActivationReport{}, ErrClosed
	}
	return rt.safety.ActivateEmergencyStop(id, reason)
}

// ResetEmergencyMode returns the network to ARMED. Loops stay disabled
// until re-enabled.
func (rt *Runtime) ResetEmergencyMode(operator, reason string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.safety.ResetEmergencyMode(operator, reason)
}

// TriggerInterlock fires an interlock by hand.
func (rt *Runtime) TriggerInterlock(id, reason string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.safety.Trigger(id, reason)
}

// AddInterlock registers an interlock.
func (rt *Runtime) AddInterlock(il safety.Interlock) error {
	unlock := rt.lock()
	defer unlock()
	return rt.safety.AddInterlock(il)
}

// SetInterlockEnabled enables or disables an interlock.
func (rt *Runtime) SetInterlockEnabled(id string, enabled bool) error {
	unlock := rt.lock()
	defer unlock()
	return rt.safety.SetInterlockEnabled(id, enabled)
}

// AddEmergencyStop registers an emergency stop.
func (rt *Runtime) AddEmergencyStop(es safety.EmergencyStop) error {
	unlock := rt.lock()
	defer unlock()
	return rt.safety.AddEmergencyStop(es)
}

// IssuePermit grants a work permit.
func (rt *Runtime) IssuePermit(holder, scope string, ttl time.Duration) (safety.Permit, error) {
	unlock := rt.lock()
	defer unlock()
	return rt.safety.IssuePermit(holder, scope, ttl)
}

// RevokePermit ends a permit early.
func (rt *Runtime) RevokePermit(id string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.safety.RevokePermit(id)
}

// Permits returns every permit, expired ones included.
func (rt *Runtime) Permits() []safety.Permit {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.safety.Permits()
}

// Safety returns the safety state.
func (rt *Runtime) Safety() safety.Snapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.safety.Snapshot()
}

// ─── Remote sites ───────────────────────────────────────────────────

// AddRemoteSite registers a remote collaborator.
func (rt *Runtime) AddRemoteSite(site remote.Site) error {
	unlock := rt.lock()
	defer unlock()
	return rt.remote.Add(site)
}

// RemoteHeartbeat records communication from a remote site.
func (rt *Runtime) RemoteHeartbeat(id string) error {
	unlock := rt.lock()
	defer unlock()
	return rt.remote.Heartbeat(id)
}

// RemoteSites returns every remote site.
func (rt *Runtime) RemoteSites() []remote.Site {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.remote.Sites()
}
