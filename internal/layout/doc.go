// Package layout compiles CUE memory maps into memory.Layout values.
//
// A memory map fixes the size of the shared store and names its variables:
//
//	memory: size: 8
//
//	variable: {
//		WORK_MODE:     {kind: "byte", address: 0, half: 0}
//		PROCESS_STEP:  {kind: "byte", address: 0, half: 1}
//		CURRENT_VALUE: {kind: "dword", address: 1}
//		CONTROL_WORD:  {kind: "word", address: 3}
//		ERROR_STATE:   {kind: "bool", address: 3, bit: 0}
//	}
//
// Kinds are bool (needs bit 0..15), byte (needs half 0 or 1), word and dword.
// Overlapping declarations are allowed; a dword at address a also occupies
// a+1. Because the file is CUE, maps can share definitions and constraints
// across devices.
package layout
