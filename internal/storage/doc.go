// Package storage persists the monitor's known-id state across restarts.
//
// It currently supports:
//   - "file": dependency-free atomic JSON snapshot
//   - "sqlite": SQLite database file
//
// Absence or corruption of prior state is never fatal: both drivers load an
// empty state and let the monitor re-baseline.
package storage
