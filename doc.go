// Package flotalk implements the flotalk core: a Smalltalk-80-style object
// runtime with a tagged value model, a reference-counted heap of cell
// blocks, a process-wide class/allocator registry, selector-indexed dispatch
// tables, a continuation-based cooperative evaluator, and user-defined
// script classes assembled at runtime.
//
// The package sees only flat instruction lists; producing those from source
// text is the job of an external parser and is not part of this package.
package flotalk
