// Package bytecode compiles parsed KuMir programs into jump-tagged linear
// bytecode and executes it on a stack-based virtual machine.
//
// # Architecture Overview
//
//   - Opcodes: a small closed set of stack instructions covering variables,
//     operators, table and string indexing, tag jumps, calls and I/O.
//
//   - Chunk: the instruction list of one algorithm (or of the main program)
//     together with its tag table. Jumps name a tag rather than an offset;
//     tags are resolved per chunk and never cross chunk boundaries.
//
//   - Compiler: a two-pass builder over the flat statement list produced by
//     the parser. Pass one hands out tags to control-flow statements and
//     records algorithm signatures; pass two emits instructions.
//
//   - VM: an explicit frame stack driven by a single dispatch loop. Names
//     resolve local-then-global; the main program's declarations are the
//     globals.
//
// # Calls
//
// арг arguments are bound by value and are read-only inside the callee.
// рез and аргрез arguments must be variable names; their final values are
// copied back to the caller's variables when the callee returns. Tables are
// values: binding or assigning one copies it.
//
// # Actors
//
// Native libraries are provided by the actor package. The builtin actor is
// loaded before a program starts; others are loaded by "использовать".
// Algorithms defined by the program take precedence over actor functions of
// the same name.
package bytecode
