// Package loader reads recorded register-file stack traces from tabular
// files and turns them into frame-machine assembly that replays them.
//
// A trace is a table with one event per row:
//
//	op            a        b       name
//	push_global
//	declare                        x
//	init          attrs    value   x
//	put                    value   x
//	get                            x
//	delete                         x
//	push_call
//	grow          n
//	store_local   slot     value
//	load_local    slot
//	store_global  index    value
//	load_global   index
//	add_globals   n
//	shrink        n
//	clear
//	mark
//	pop_call
//	pop_global
//
// Reads (get, load_local, load_global, mark) print the value they observe,
// so replaying a trace produces the observed values as program output.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"

	"github.com/akhildatla/regfile/pkg/compiler"
	"github.com/akhildatla/regfile/pkg/vm"
)

// Trace errors
var (
	ErrEmptyTrace       = errors.New("empty trace")
	ErrMissingColumn    = errors.New("trace has no op column")
	ErrUnknownColumn    = errors.New("unknown trace column")
	ErrDuplicateColumn  = errors.New("duplicate trace column")
	ErrUnknownEvent     = errors.New("unknown trace event")
	ErrInvalidOperand   = errors.New("invalid trace operand")
	ErrUnsupportedTrace = errors.New("unsupported trace format")
)

// Trace column names.
const (
	ColumnOp   = "op"
	ColumnA    = "a"
	ColumnB    = "b"
	ColumnName = "name"
)

// traceFormats maps a file extension to the reader for that format.
var traceFormats = map[string]func(context.Context, string) (*dataframe.DataFrame, error){
	".csv":     readCSV,
	".json":    readJSON,
	".parquet": readParquet,
}

// LoadTrace reads a trace table, choosing the format by file extension. The
// table must have an op column and no columns besides op, a, b and name.
func LoadTrace(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	ext := strings.ToLower(filepath.Ext(path))
	read, ok := traceFormats[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTrace, ext)
	}

	df, err := read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if df == nil || len(df.Series) == 0 || df.NRows() == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyTrace)
	}
	if _, err := columns(df); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return df, nil
}

// readCSV reads a CSV trace. The first row is the header. Lines starting
// with # are skipped, and operand columns are inferred as int64.
func readCSV(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return imports.LoadFromCSV(ctx, f, imports.CSVLoadOptions{
		Comment:          '#',
		TrimLeadingSpace: true,
		InferDataTypes:   true,
	})
}

// readJSON reads an array of event objects:
//
//	[{"op": "declare", "name": "x"}, {"op": "put", "b": 3, "name": "x"}]
//
// Keys missing from an object read as empty cells.
func readJSON(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyTrace
	}
	return imports.LoadFromJSON(ctx, bytes.NewReader(data))
}

func readParquet(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	return imports.LoadFromParquet(ctx, fr)
}

// LoadProgram reads a trace and assembles the program that replays it.
func LoadProgram(ctx context.Context, path string) (*vm.Program, error) {
	df, err := LoadTrace(ctx, path)
	if err != nil {
		return nil, err
	}
	asm, err := TraceToAssembly(df)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(asm)
}

type traceColumns struct {
	op, a, b, name dataframe.Series
}

func columns(df *dataframe.DataFrame) (traceColumns, error) {
	var cols traceColumns
	for _, s := range df.Series {
		var slot *dataframe.Series
		name := strings.ToLower(strings.TrimSpace(s.Name()))
		switch name {
		case ColumnOp:
			slot = &cols.op
		case ColumnA:
			slot = &cols.a
		case ColumnB:
			slot = &cols.b
		case ColumnName:
			slot = &cols.name
		default:
			return cols, fmt.Errorf("%w: %q", ErrUnknownColumn, s.Name())
		}
		if *slot != nil {
			return cols, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		*slot = s
	}
	if cols.op == nil {
		return cols, ErrMissingColumn
	}
	return cols, nil
}

// TraceToAssembly converts trace rows into assembly ending in HALT R0, so
// the replay returns the last value it loaded.
func TraceToAssembly(df *dataframe.DataFrame) (string, error) {
	if df == nil || len(df.Series) == 0 {
		return "", ErrEmptyTrace
	}
	cols, err := columns(df)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	emit := func(op, format string, args ...any) {
		if format == "" {
			b.WriteString(op)
		} else {
			fmt.Fprintf(&b, "%-14s %s", op, fmt.Sprintf(format, args...))
		}
		b.WriteString("\n")
	}

	rows := cols.op.NRows()
	for row := 0; row < rows; row++ {
		event := strings.ToLower(strings.TrimSpace(cellString(cols.op, row)))
		if event == "" {
			continue
		}

		a, err := cellInt(cols.a, row)
		if err != nil {
			return "", fmt.Errorf("row %d: column a: %w", row+1, err)
		}
		v, err := cellInt(cols.b, row)
		if err != nil {
			return "", fmt.Errorf("row %d: column b: %w", row+1, err)
		}
		name := strings.TrimSpace(cellString(cols.name, row))

		needName := func() error {
			if name == "" {
				return fmt.Errorf("row %d: %s: %w: missing name", row+1, event, ErrInvalidOperand)
			}
			return nil
		}
		needImm := func(limit int64) error {
			if a < 0 || a > limit {
				return fmt.Errorf("row %d: %s: %w: %d out of range", row+1, event, ErrInvalidOperand, a)
			}
			return nil
		}

		switch event {
		case "push_global", "pop_global", "push_call", "pop_call", "clear":
			emit(strings.ToUpper(event), "")

		case "add_globals", "grow", "shrink":
			if err := needImm(math.MaxUint16); err != nil {
				return "", err
			}
			emit(strings.ToUpper(event), "%d", a)

		case "store_local", "store_global":
			if err := needImm(math.MaxUint16); err != nil {
				return "", err
			}
			emit("LOAD_CONST", "R0, %d", v)
			emit(strings.ToUpper(event), "R0, %d", a)

		case "load_local", "load_global":
			if err := needImm(math.MaxUint16); err != nil {
				return "", err
			}
			emit(strings.ToUpper(event), "R0, %d", a)
			emit("PRINT", "R0")

		case "declare":
			if err := needName(); err != nil {
				return "", err
			}
			emit("DECLARE", "%q", name)

		case "init":
			if err := needName(); err != nil {
				return "", err
			}
			if err := needImm(15); err != nil {
				return "", err
			}
			emit("LOAD_CONST", "R0, %d", v)
			emit("INIT_VAR", "R0, %q, %d", name, a)

		case "put":
			if err := needName(); err != nil {
				return "", err
			}
			emit("LOAD_CONST", "R0, %d", v)
			emit("SET_VAR", "R0, %q", name)

		case "get":
			if err := needName(); err != nil {
				return "", err
			}
			emit("GET_VAR", "R0, %q", name)
			emit("PRINT", "R0")

		case "delete":
			if err := needName(); err != nil {
				return "", err
			}
			emit("DELETE_VAR", "R0, %q", name)

		case "mark":
			emit("MARK", "R0")
			emit("PRINT", "R0")

		default:
			return "", fmt.Errorf("row %d: %w: %q", row+1, ErrUnknownEvent, event)
		}
	}

	emit("HALT", "R0")
	return b.String(), nil
}

func cellString(s dataframe.Series, row int) string {
	if s == nil || row >= s.NRows() {
		return ""
	}
	switch v := s.Value(row).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// cellInt reads an integer cell. Missing cells read as 0.
func cellInt(s dataframe.Series, row int) (int64, error) {
	if s == nil || row >= s.NRows() {
		return 0, nil
	}
	switch v := s.Value(row).(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidOperand, v)
		}
		return int64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidOperand, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidOperand, v)
	}
}
