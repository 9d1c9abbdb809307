// Package vm implements the Kestrel tree-walking interpreter.
//
// This package contains:
//   - The Number/Text value representation
//   - The Interpreter: variable environment, procedure table, recorded key
//   - Statement execution and total expression evaluation
//   - The KeySource and Sink collaborator interfaces with test doubles
package vm
