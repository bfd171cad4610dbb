// Package optimizer rewrites frame-machine programs without changing what
// they compute or print.
//
// The instruction set has no branches, so every pass is a straight-line
// rewrite. Passes are applied repeatedly until none of them changes the
// program.
package optimizer

import (
	"slices"

	"github.com/tliron/commonlog"

	"github.com/akhildatla/regfile/pkg/vm"
)

// maxRounds bounds the fixed-point loop.
const maxRounds = 16

// Optimizer applies optimizations to a compiled program.
type Optimizer struct {
	enableConstantFolding bool
	enableFrameFolding    bool
	enableDeadFrames      bool
	enableDeadCode        bool

	log commonlog.Logger
}

// Option is a functional option for the Optimizer.
type Option func(*Optimizer)

// WithConstantFolding enables constant folding optimization.
func WithConstantFolding() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
	}
}

// WithFrameFolding enables merging of adjacent frame resize instructions.
func WithFrameFolding() Option {
	return func(o *Optimizer) {
		o.enableFrameFolding = true
	}
}

// WithDeadFrameElimination enables removal of empty global evaluations.
func WithDeadFrameElimination() Option {
	return func(o *Optimizer) {
		o.enableDeadFrames = true
	}
}

// WithAllOptimizations enables all optimizations.
func WithAllOptimizations() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
		o.enableFrameFolding = true
		o.enableDeadFrames = true
		o.enableDeadCode = true
	}
}

// New creates a new Optimizer with the given options.
func New(opts ...Option) *Optimizer {
	opt := &Optimizer{
		log: commonlog.GetLogger("regfile.optimizer"),
	}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

// Optimize applies enabled optimizations to the program until it stops
// changing. The input program is never modified.
func (o *Optimizer) Optimize(program *vm.Program) *vm.Program {
	result := program

	for round := 0; round < maxRounds; round++ {
		before := len(result.Code)
		prev := result

		if o.enableConstantFolding {
			result = o.constantFolding(result)
		}

		if o.enableFrameFolding {
			result = o.frameFolding(result)
		}

		if o.enableDeadFrames {
			result = o.deadFrameElimination(result)
		}

		if o.enableDeadCode {
			result = o.deadCodeElimination(result)
		}

		if sameProgram(prev, result) {
			break
		}
		o.log.Debugf("round %d: %d -> %d instructions", round, before, len(result.Code))
	}

	return result
}

func sameProgram(a, b *vm.Program) bool {
	return a == b || (slices.Equal(a.Code, b.Code) && slices.Equal(a.Ints, b.Ints))
}

// withCode returns a copy of program with new code and shared pools.
func withCode(program *vm.Program, code []vm.Instruction) *vm.Program {
	return &vm.Program{
		Code:  code,
		Ints:  program.Ints,
		Names: program.Names,
	}
}
