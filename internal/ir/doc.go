// Package ir provides the column value model shared by every layer of the
// unit of work: scalar values, tuples of values and their hashing and
// canonical encodings.
//
// ir imports nothing internal. Keys, entity states, the persist planner and
// the SQLite adapter all speak in ir.Tuple so that identity and storage
// agree on one representation.
//
// Constraints:
//   - NO float types - column kinds are string, int, bool and uuid
//   - Null is an explicit value (Null{}), never a nil interface inside a tuple
//   - Hashes are xxhash64 over a tagged binary encoding and are process local
package ir
