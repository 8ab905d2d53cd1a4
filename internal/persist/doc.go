// Package persist turns registered entity states into an ordered sequence
// of Insert, Update and Remove actions for an Executor.
//
// PlainGenerator emits removes, then updates, then inserts, in registry
// order. SortingGenerator is for storage that enforces non-deferrable
// foreign keys: it emits inserts referenced-first, then updates, then
// removes referencer-first, and breaks reference cycles with compensating
// updates.
//
// Actions carry a snapshot of the values to write, taken at generation
// time. Later changes to the live states do not alter a generated plan.
package persist
