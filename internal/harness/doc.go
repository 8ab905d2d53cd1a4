// Package harness runs scripted units of work against a real store.
//
// A scenario names a CUE model directory, drives one session through a
// list of steps, and asserts on the plans its flushes produced and on the
// rows left behind. Each run opens a fresh in-memory SQLite database
// unless WithDatabase points it at a file.
//
// # Scenario Format
//
//	name: rush_order
//	description: "Orders are inserted after their customer"
//	model: ../models/shop
//	key_mode: temporary
//	steps:
//	  - do: create
//	    as: ann
//	    type: Customer
//	    values: { name: Ann }
//	  - do: create
//	    as: o1
//	    type: RushOrder
//	    values: { priority: 2 }
//	  - do: add
//	    entity: ann
//	    field: orders
//	    item: o1
//	  - do: flush
//	assertions:
//	  - type: action_order
//	    first: insert Customer
//	    then: insert Order
//	  - type: row_count
//	    entity: Order
//	    count: 1
//
// # Steps
//
//   - create, get: track a new or stored entity under an alias
//   - set, ref: assign a value field or a reference
//   - add, drop: change collection membership
//   - remove: delete an entity
//   - pin, unpin: withhold an entity from flushes
//   - flush, rollback: end the unit of work
//
// A step with expect_error must fail; the value is a flush error code, a
// substring of the error, or "any".
//
// # Assertion Types
//
//   - action_order: one action prefix appears before another in a flush
//   - action_count: number of insert, update or remove actions in a flush
//   - compensations: number of compensating updates in a flush
//   - row_count: stored rows of a hierarchy
//   - stored: field values of one stored row, or its absence
//   - entity_state: persistence state of a session entity
//
// Golden files under testdata/golden hold the canonical JSON of every
// flush of a run; see RunWithGolden.
package harness
