// Package scheduler owns the world-event lifecycle: it spawns events from
// recurring definitions, drives the per-event state machine on a fixed
// tick, and hands completed events to settlement.
//
// # Tick model
//
// A single cron-driven tick (default every 60s) does three things in
// order: evaluate recurring definitions against the current minute,
// promote scheduled events whose start time has passed, and demote active
// events whose end time has passed (running settlement exactly once).
// Due transitions are tracked in a min-heap keyed by transition time, so
// a tick only touches events that are actually due.
//
// Ticks never overlap: if the interval elapses while a tick is still in
// flight, the next tick is skipped entirely rather than queued. This is
// the sole guard against duplicate event creation from re-evaluating the
// same trigger minute.
//
// # Uniqueness
//
// At most one event of a given (type, scope) may be scheduled or active
// at a time. The check is intentionally coarse (not keyed by trigger
// minute) and is the only duplicate-suppression mechanism for recurring
// definitions. Running two scheduler instances against the same store
// breaks it; a single active instance is assumed.
package scheduler
