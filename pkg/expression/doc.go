// Package expression implements the interpolation syntax and the small
// expression language used in component properties.
//
// A raw property string is first split into a Chunk: literal text and
// dynamic segments delimited by {{ and }}. Dynamic segments may nest.
//
//	ParseChunk("Hello {{ user.name }}!")
//	// Chunk{{Text: "Hello "}, {Dynamic: true, Inner: ...}, {Text: "!"}}
//
// The text of a dynamic segment is compiled by Compile and evaluated against
// a Scope. The language is a side-effect free subset of JavaScript
// expressions: literals, identifiers, member and index access, optional
// chaining, calls, arrow functions with expression bodies, arithmetic,
// comparison, logical and nullish operators, the conditional operator,
// array and object literals and template strings. There are no statements,
// assignments or loops.
//
// Values are plain Go values: nil, float64, string, bool, []any,
// map[string]any, Func and Object. Operators follow JavaScript coercion
// rules ("a" + 1 is "a1", "2" == 2 is true).
package expression
