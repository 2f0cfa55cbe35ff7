// Package storage persists scheduled events.
//
// It currently supports:
//   - "memory": in-process map store (default; tests, dev)
//   - "sqlite": SQLite database file via modernc.org/sqlite
//
// The scheduler only needs single-document atomic updates; there are no
// multi-event transactions.
package storage
