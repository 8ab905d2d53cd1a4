// Package schema holds the compiled model metadata the unit of work runs on:
// hierarchies, types, fields, keys and associations.
//
// A Model is immutable once Build returns. Every type belongs to exactly one
// Hierarchy, and every type in a hierarchy shares the hierarchy's KeyInfo.
// Fields are laid out over a flat entity tuple: key columns first, then the
// declared fields of the root, then each subtype's own fields. Inherited
// fields keep the offset they have in the base type.
//
// Reference fields occupy the target key's columns inside the tuple.
// Collection fields occupy no columns. Many-to-many collections are backed
// by an auxiliary type whose key is the owner key columns followed by the
// target key columns.
package schema
