// Package refs records reference changes made since the last flush.
//
// FieldChanges keeps one entry per (owner, field) with the target before
// the first change and after the last one, keyed by Key so that the key
// remapper can resolve both ends. Tracker keeps, per target entity and
// association, the entities that gained or lost a reference to it; the
// session consults it to keep referential integrity when a target is
// removed.
//
// Both take a narrow mutex around their maps only. They may be touched by
// cancellation callbacks while the session works on its own goroutine.
package refs
