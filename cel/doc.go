// Package cel compiles CEL boolean expressions into sieve filters.
//
// See https://github.com/google/cel-go and https://opensource.google/projects/cel for more information
// about CEL. Expressions are parsed, not type-checked: attribute names are
// resolved later, when the filter is registered with a sieve.Matcher, by the
// matcher's metadata adapter.
//
// # Supported Expressions
//
// A sieve filter is a conjunction, so an expression must be a chain of terms
// joined with &&. Each term compares an attribute path with a literal:
//
//	age >= 18 && address.country == "US"
//	status in ["open", "pending"]
//	"urgent" in tags                  // any value of the multi-valued tags equals "urgent"
//	deleted_at == null                // also: != null
//	has(owner.email)                  // not null; !has(owner.email) is null
//	size(notes) == 0                  // empty; size(notes) > 0 is not empty
//	active && !archived               // bool attributes
//	created > timestamp("2024-01-01T00:00:00Z")
//	elapsed < duration("1h30m")
//
// Literals may be on either side of a comparison. Attribute paths may use
// field selection (a.b) or indexing with a string constant (a["b"]).
//
// Everything else, including ||, arithmetic, function calls and comparisons
// between two attributes, is rejected. Compile reports every unsupported
// term of an expression in one error, with the source offset of each.
package cel
