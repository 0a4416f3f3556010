// Package templates implements the pipeline template catalog: reusable,
// categorized pipeline definitions stored independently of any execution.
// Definitions are validated on create and update, so every stored template
// can be instantiated as a valid execution at any time.
package templates
