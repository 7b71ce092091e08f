// Package event implements a synchronous pub-sub event bus and the typed
// session events the orchestrator emits.
//
// # Delivery Semantics
//
// Delivery is synchronous, in registration order, and at-most-once. Handlers
// that panic are recovered and logged; the panic never propagates to the
// publisher or blocks other handlers. There is no replay: consumers that
// need history read the persisted transcript from the session store.
//
// # Session Scoping
//
// Transport adapters subscribe with SubscribeSession(sessionID, handler) and
// receive only that session's events. Process-wide observers (logging) use
// SubscribeAll.
package event
