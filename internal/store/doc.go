// Package store is the SQLite execution layer for flush plans.
//
// Each hierarchy of the domain model is one table (see sqlgen). A plan is
// executed in a single transaction with foreign keys enforced and not
// deferred, so every statement must leave references valid: this is what
// makes the order produced by the sorting action generator observable.
//
// The store also provides:
//   - a durable key generator backed by the sequences table
//   - read-back of rows, counts and collection membership
//   - a flush log with the canonical JSON of every executed plan
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All multi-row reads are ordered by key.
package store
