// Package key implements entity keys: typed, hashable identity tuples.
//
// A Key is a sealed interface with one variant per arity from one to four
// and a generic variant for wider keys. Equality never depends on the
// variant: two keys are equal when they belong to the same hierarchy and
// carry the same values, whichever concrete shape holds them.
//
// Keys are built by a Factory. Keys whose exact type is known may be
// interned in a bounded, process-wide Cache so that repeated lookups of the
// same identity return the same instance. New identities come from a
// Generator, selected per hierarchy by Generators according to the session
// key mode.
package key
