// Package embed provides the Go embedding API for the register-file frame
// machine.
//
// Pass a string, get a result.
//
// Basic usage:
//
//	result, err := embed.Execute(`
//	    DECLARE       "x"
//	    LOAD_CONST    R0, 42
//	    INIT_VAR      R0, "x"
//	    HALT          R0
//	`)
//
// Scripts compile to the same assembly first:
//
//	result, err := embed.ExecuteScript(`
//	    var x = 6 * 7
//	    call { var t = x; print t }
//	    return x
//	`, embed.WithTimeout(time.Second))
package embed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akhildatla/regfile/internal/config"
	"github.com/akhildatla/regfile/pkg/compiler"
	"github.com/akhildatla/regfile/pkg/dsl"
	"github.com/akhildatla/regfile/pkg/loader"
	"github.com/akhildatla/regfile/pkg/optimizer"
	"github.com/akhildatla/regfile/pkg/vm"
)

// Common errors
var (
	ErrTimeout          = errors.New("execution timeout exceeded")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
	ErrStackExhausted   = errors.New("register file stack exhausted")
	ErrUnknownFileType  = errors.New("unknown program file type")
)

// Result is the outcome of a successful run.
type Result struct {
	// Value is the operand of the HALT that ended the program.
	Value int64

	// Output holds the values printed by the program, in order.
	Output []int64

	// Globals holds every global binding after the run.
	Globals map[string]int64

	// Stats describes the run when WithStats was given.
	Stats *vm.ExecutionStats

	// Snapshot holds the final stack when WithSnapshot was given.
	Snapshot *vm.StackSnapshot
}

// Options configures execution behavior.
type Options struct {
	// Timeout sets maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxInstructions limits the number of instructions executed.
	// Zero means unlimited.
	MaxInstructions int64

	// MaxStackSize bounds the local slots of the outermost register file.
	// Zero keeps the vm default.
	MaxStackSize int

	// InitialCapacity preallocates slots in every new register file.
	InitialCapacity int

	// Optimize runs every optimizer pass before execution.
	Optimize bool

	// Stats enables execution statistics in the Result.
	Stats bool

	// Snapshot captures the stack after a successful run.
	Snapshot bool

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring execution. Later options
// override earlier ones.
type Option func(*Options)

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxInstructions sets instruction limit.
func WithMaxInstructions(n int64) Option {
	return func(o *Options) {
		o.MaxInstructions = n
	}
}

// WithMaxStackSize bounds the register file stack.
func WithMaxStackSize(n int) Option {
	return func(o *Options) {
		o.MaxStackSize = n
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// WithConfig applies the stack and limits sections of a configuration.
func WithConfig(c *config.Config) Option {
	return func(o *Options) {
		if c == nil {
			return
		}
		o.MaxStackSize = c.Stack.MaxSize
		o.InitialCapacity = c.Stack.InitialCapacity
		o.MaxInstructions = c.Limits.MaxInstructions
		o.Timeout = c.Limits.Timeout.Duration
	}
}

// WithOptimization runs the optimizer before execution.
func WithOptimization() Option {
	return func(o *Options) {
		o.Optimize = true
	}
}

// WithStats collects execution statistics.
func WithStats() Option {
	return func(o *Options) {
		o.Stats = true
	}
}

// WithSnapshot keeps a copy of the final stack in the Result.
func WithSnapshot() Option {
	return func(o *Options) {
		o.Snapshot = true
	}
}

// Execute compiles and runs assembly code.
//
// Example:
//
//	result, err := embed.Execute(code,
//	    embed.WithTimeout(5*time.Second),
//	    embed.WithMaxInstructions(10000),
//	    embed.WithMaxStackSize(1<<16),
//	)
func Execute(code string, opts ...Option) (*Result, error) {
	program, err := compiler.Compile(code)
	if err != nil {
		return nil, err
	}
	return ExecuteProgram(program, opts...)
}

// ExecuteScript compiles script code to assembly, then runs it.
func ExecuteScript(code string, opts ...Option) (*Result, error) {
	asm, err := dsl.Compile(code)
	if err != nil {
		return nil, err
	}
	return Execute(asm, opts...)
}

// ExecuteFile runs a program file, choosing the front end by extension:
// .rasm assembly, .rs script, .rfbc bytecode, or a .csv, .json or .parquet
// trace.
func ExecuteFile(path string, opts ...Option) (*Result, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".rasm", ".asm":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return Execute(string(data), opts...)

	case ".rs":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ExecuteScript(string(data), opts...)

	case ".rfbc":
		program, err := vm.ReadProgramFile(path)
		if err != nil {
			return nil, err
		}
		return ExecuteProgram(program, opts...)

	case ".csv", ".json", ".parquet":
		options := apply(opts)
		program, err := loader.LoadProgram(options.Context, path)
		if err != nil {
			return nil, err
		}
		return ExecuteProgram(program, opts...)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFileType, ext)
	}
}

func apply(opts []Option) *Options {
	options := &Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Context == nil {
		options.Context = context.Background()
	}
	return options
}

// ExecuteProgram runs an already compiled program on a fresh stack.
func ExecuteProgram(program *vm.Program, opts ...Option) (*Result, error) {
	options := apply(opts)

	if options.Optimize {
		program = optimizer.New(optimizer.WithAllOptimizations()).Optimize(program)
	}

	var stackOpts []vm.StackOption
	if options.MaxStackSize > 0 {
		stackOpts = append(stackOpts, vm.WithMaxSize(options.MaxStackSize))
	}
	if options.InitialCapacity > 0 {
		stackOpts = append(stackOpts, vm.WithInitialCapacity(options.InitialCapacity))
	}

	machine := vm.NewVM(stackOpts...)
	defer machine.Stack().Close()

	machine.SetMaxSteps(options.MaxInstructions)
	if options.Stats {
		machine.EnableStats()
	}

	if err := machine.Load(program); err != nil {
		return nil, err
	}

	// Setup timeout context
	ctx := options.Context
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}
	machine.SetContext(ctx)

	value, err := machine.Execute()
	if err != nil {
		// Map VM errors to embed package errors
		switch {
		case errors.Is(err, vm.ErrInstructionLimit):
			return nil, ErrInstructionLimit
		case errors.Is(err, vm.ErrStackExhausted):
			return nil, fmt.Errorf("%w: %w", ErrStackExhausted, err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, ErrTimeout
		}
		return nil, err
	}

	result := &Result{
		Value:   value,
		Output:  machine.Output(),
		Globals: globals(machine.Globals()),
		Stats:   machine.Stats(),
	}
	if options.Snapshot {
		result.Snapshot = machine.Stack().Snapshot()
	}
	return result, nil
}

func globals(scope *vm.Scope) map[string]int64 {
	values := make(map[string]int64)
	for _, name := range scope.Names() {
		if v, ok, err := scope.Get(name); ok && err == nil {
			values[name] = v.Int()
		}
	}
	return values
}
