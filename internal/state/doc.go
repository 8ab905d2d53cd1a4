// Package state tracks entities inside a session: their differential tuples,
// their persistence state and the Registry that buckets touched entities
// into New, Modified and Removed.
//
// Structures here are single-writer. A session mutates them sequentially;
// nothing in this package locks.
package state
