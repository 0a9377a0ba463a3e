// Package tree models the nested JSON payloads returned by the order API as
// a closed tagged-variant tree. Every node is one of Null, Bool, Number,
// String, Array, or Object; consumers pattern-match on the variant instead of
// doing runtime type inspection on raw interface{} values.
//
// Numbers keep their raw JSON literal. Two numbers are equal only when their
// literals are equal, and a number is never equal to a string; the API mixes
// numeric and stringified fields and silent coercion would hide real changes.
package tree
