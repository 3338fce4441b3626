// Package errors provides structured, actionable errors for the sunmao
// command line and server.
//
// Each error carries a registered code (e.g., "E202") that maps to a short
// message, a longer explanation and, where one exists, a hint. Errors that
// come from a file (config or schema) also carry the location and the
// surrounding lines.
//
// # Error Categories
//
//   - config: sunmao.json / sunmao.yaml problems
//   - schema: application documents that fail to parse or validate
//   - expression: property expressions that fail to compile
//   - runtime: application runtime and snapshot errors
//   - server: HTTP and WebSocket errors
//   - cli: command line usage errors
//
// # Usage
//
//	err := errors.New("E202").
//	    WithLocation("app.yaml", 14, 7).
//	    WithDetail(`component id "input1" is used twice`)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E202: Duplicate component id
//	//
//	//   app.yaml:14:7
//	//
//	//     12 │   - id: input1
//	//     13 │     type: core/v1/input
//	//   → 14 │   - id: input1
//	//        │       ^
//	//     15 │     type: core/v1/text
//	//
//	//   component id "input1" is used twice
package errors
