// Package testutil provides testing utilities for regfile tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/regfile/pkg/compiler"
	"github.com/akhildatla/regfile/pkg/vm"
)

// TempFile creates a temporary file with the given content and extension.
// The file is automatically cleaned up when the test finishes.
func TempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// TraceCSV returns a trace that nests an evaluation and an implicit call.
// Replaying it prints 5, 9 and 42 and returns 42.
func TraceCSV() string {
	return `op,a,b,name
declare,,,x
init,0,5,x
push_global,,,
get,,,x
put,,9,x
pop_global,,,
get,,,x
push_call,,,
grow,2,,
store_local,1,42,
load_local,1,,
pop_call,,`
}

// TraceJSON returns the JSON form of TraceCSV.
func TraceJSON() string {
	return `[
	{"op": "declare", "a": 0, "b": 0, "name": "x"},
	{"op": "init", "a": 0, "b": 5, "name": "x"},
	{"op": "push_global", "a": 0, "b": 0, "name": ""},
	{"op": "get", "a": 0, "b": 0, "name": "x"},
	{"op": "put", "a": 0, "b": 9, "name": "x"},
	{"op": "pop_global", "a": 0, "b": 0, "name": ""},
	{"op": "get", "a": 0, "b": 0, "name": "x"},
	{"op": "push_call", "a": 0, "b": 0, "name": ""},
	{"op": "grow", "a": 2, "b": 0, "name": ""},
	{"op": "store_local", "a": 1, "b": 42, "name": ""},
	{"op": "load_local", "a": 1, "b": 0, "name": ""},
	{"op": "pop_call", "a": 0, "b": 0, "name": ""}
]`
}

// MakeTraceFrame builds a small trace table in memory.
func MakeTraceFrame() *dataframe.DataFrame {
	return dataframe.NewDataFrame(
		dataframe.NewSeriesString("op", nil, "declare", "put", "get", "add_globals"),
		dataframe.NewSeriesInt64("a", nil, nil, nil, nil, 3),
		dataframe.NewSeriesInt64("b", nil, nil, 7, nil, nil),
		dataframe.NewSeriesString("name", nil, "y", "y", "y", nil),
	)
}

// NestedProgram returns assembly that declares g, reads it from a nested
// evaluation and an implicit call, and returns 12.
func NestedProgram() string {
	return `DECLARE "g"
LOAD_CONST R0, 5
INIT_VAR R0, "g"
PUSH_GLOBAL
GET_VAR R1, "g"
LOAD_CONST R2, 1
ADD_R R1, R1, R2
SET_VAR R1, "g"
POP_GLOBAL
PUSH_CALL
GROW 1
GET_VAR R3, "g"
STORE_LOCAL R3, 0
LOAD_LOCAL R4, 0
ADD_R R4, R4, R3
POP_CALL
PRINT R4
HALT R4
`
}

// MustCompile assembles source or fails the test.
func MustCompile(t *testing.T, source string) *vm.Program {
	t.Helper()
	program, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return program
}

// Run executes a program on a fresh VM and returns its result and output.
func Run(t *testing.T, program *vm.Program, opts ...vm.StackOption) (int64, []int64) {
	t.Helper()
	machine := vm.NewVM(opts...)
	if err := machine.Load(program); err != nil {
		t.Fatalf("load error: %v", err)
	}
	result, err := machine.Execute()
	if err != nil {
		t.Fatalf("execute error: %v", err)
	}
	return result, machine.Output()
}

// AssertInt64sEqual checks that two int64 slices are equal.
func AssertInt64sEqual(t *testing.T, expected, actual []int64) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Fatalf("expected %v, got %v", expected, actual)
		}
	}
}
