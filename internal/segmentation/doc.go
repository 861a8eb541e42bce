// Package segmentation compiles audience filters into predicates.
//
// A FilterSpec is compiled into a small expression tree (Predicate) that can
// be evaluated in memory with Match or pushed down to Postgres with
// QueryBuilder. Both paths share the same coercion rules:
//
//   - a condition is numeric when any of its operands is a decimal literal
//   - numeric EQUALS/NOT_EQUALS compare doubles; non-numeric fields never match
//   - numeric GREATER_THAN/LESS_THAN/BETWEEN truncate the field to an integer
//     and treat non-numeric fields as 0
//   - string comparisons trim whitespace for EQUALS/NOT_EQUALS only
//   - CONTAINS is case-insensitive and NOT_CONTAINS is its exact negation
//   - timestamp conditions only see attributes stored as dates
//
// Unknown condition types compile to All and match every contact.
package segmentation
