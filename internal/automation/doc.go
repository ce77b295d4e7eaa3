// Package automation provides the condition/action rule engine of the
// control network.
//
// A rule pairs one Condition with one Action. Every routed signal is offered
// to every enabled rule in registration order; rules whose condition tree
// contains a schedule are also offered a signal-less evaluation on the rule
// tick.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                   │
//	│                                                       │
//	│  Evaluate(signal, state)          Tick(state)         │
//	│        │                              │               │
//	│        ▼                              ▼               │
//	│  ┌──────────────────────────────────────────────┐    │
//	│  │  Per rule, in registration order              │    │
//	│  │  1. enabled?                                  │    │
//	│  │  2. evaluation interval elapsed?              │    │
//	│  │  3. outside cooldown?                         │    │
//	│  │  4. condition (conditions.go)                 │    │
//	│  │  5. action (actions.go) via ActionHost        │    │
//	│  │  6. metrics + ruleTriggered event             │    │
//	│  └──────────────────────────────────────────────┘    │
//	└──────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Rule: a registered condition/action pair with cooldown and metrics
//   - Condition: sealed set of condition variants (signal type, threshold,
//     schedule, node count, system health, composite)
//   - Action: sealed set of action variants (send signal, update setpoint,
//     raise alarm, log event, run script, toggle rule, system control)
//   - ActionHost: the side-effect surface actions reach through
//   - RuleSpec: YAML / JSON form of a rule, built into a Definition
//
// # Failure isolation
//
// A condition or action failure is caught at the rule boundary, logged and
// counted in that rule's metrics. The remaining rules still evaluate.
//
// # Thread Safety
//
// Engine holds no locks. The network runtime serialises every call.
package automation
