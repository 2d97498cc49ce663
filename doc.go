// Package sieve matches a stream of objects against many registered filters
// without evaluating each filter from scratch for every object.
//
// A filter is a conjunction of predicates over attribute paths (for example
// "age > 18 AND address.country = US"), optionally followed by a list of
// attribute paths to project into an output row. Filters are registered with a
// Matcher, which indexes them in a single attribute tree shared by all filters:
//
//	root
//	├── address
//	│   └── country      = "US"  (filter 2)
//	├── age              > 18    (filters 1 and 2)
//	└── name             project (filter 1, slot 0)
//
// When an object is matched, the tree is walked once. For each node the
// attribute value is extracted once, every distinct predicate at the node is
// evaluated once, and the outcome is fanned out to all filters subscribed to it.
// A filter is satisfied when all of its predicates held for the object.
//
// Typical use is as follows:
//
//  1. Choose a MetadataAdapter for the objects you will match (SchemaAdapter for
//     maps, reflectadapter for Go structs, protoadapter for protocol buffers)
//  2. Create a Matcher with the adapter
//  3. Register filters, built by hand or compiled from CEL with the cel package
//  4. Call Match (or MatchAll) for each incoming object
//  5. Receive the satisfied filters and their projected rows in a Sink
//
// # Concurrency
//
// Match may be called from any number of goroutines at the same time, and while
// filters are being registered or unregistered. Readers never take a lock: each
// node publishes its children, predicates and projections as immutable snapshots
// that writers replace atomically. Register and Unregister are serialised with
// respect to each other.
//
// # Attribute Absence
//
// An attribute that does not resolve on an object is not an error. It is passed
// to the predicates of its node as an absent value, which satisfies only null and
// emptiness tests, and it leaves the projection slots of its node set to NoValue.
//
// A multi-valued attribute with no elements is absent. Otherwise its null and
// emptiness tests see the collection as a whole, while comparisons hold when
// any element satisfies them.
package sieve
