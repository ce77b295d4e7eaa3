// Package network composes the control network's components behind a
// single serialising runtime.
//
// Runtime is the only entry point callers use. It owns one mutex that stands
// in for the network's single logical thread: every operation, every tick
// and every event delivered on the bus runs while that mutex is held, so the
// components it wires together hold no locks of their own.
//
// Architecture:
//
//	           ProcessControlSignal
//	                   │
//	                   ▼
//	┌──────────┐   ┌────────┐   ┌──────────────┐
//	│   node   │◄──│routing │──►│  automation  │── actions ──┐
//	│ registry │   │ router │   │    engine    │             │
//	└──────────┘   └────────┘   └──────────────┘             ▼
//	                   │ signalProcessed            ┌──────────────┐
//	                   ▼                            │ runtime host │
//	              ┌─────────┐                       └──────────────┘
//	              │eventbus │◄── loopOutput ── control.Scheduler ◄┘
//	              └─────────┘
//	                   │ alarmRaised / signalProcessed
//	                   ▼
//	             safety.Manager ── emergency ──► loops off, interlocks,
//	                                             remote.Registry broadcast
//
// Bus handlers run under the runtime lock. Subscribers outside this package
// must not call back into the Runtime from a handler; they should hand the
// event to their own goroutine.
//
// Periodic work is driven by Tick, which runs whatever is due on the runtime
// clock: loop execution, time-based rules, health checks, the stale-node
// sweep, permit expiry and remote timeouts. Run calls Tick on a ticker.
package network
