// Package session is the unit of work: it tracks entity changes and flushes
// them as one ordered plan.
//
// A Session owns one instance of every change-tracking structure: the
// identity map, the change registry, the pinner, the reference-change
// registries, the key remapper and the collection delta states. Callers
// mutate entities through the session so that each change reaches every
// structure that depends on it.
//
// FLUSH PIPELINE:
//
//  1. Pin: entities protected by a root, and New entities referencing
//     them, are withheld.
//  2. Remap: New entities with temporary keys get durable keys, and the
//     mapping is applied to states, the identity map and delta states.
//  3. Plan: the action generator orders inserts, updates and removes.
//  4. Execute: the plan goes to the Executor as one batch.
//  5. Commit: on success, flushed states become Synchronized, delta
//     changes are applied and the registries are cleared.
//
// A failed execution leaves the registry, the states and the delta states
// as they were. Keys assigned by a remap are kept, since the durable
// generator has already handed them out.
//
// A Session is single-writer: its methods must not be called concurrently.
// Flushes are numbered by a logical clock, never by wall time.
package session
