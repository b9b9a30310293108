// Package abc reads the ABC bytecode container.
//
// This package contains:
//   - a byte cursor for the variable-length and fixed-width encodings
//   - the module parser with lazily decoded, memoized constant tables
//   - the namespace / multiname model and its per-domain interner
//   - trait descriptors for instances, classes, scripts and method bodies
//   - the opcode table, instruction reader and disassembler
//   - builders that assemble modules and method bodies
package abc
