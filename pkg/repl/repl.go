// Package repl implements an interactive loop over one long-lived frame
// machine, so globals declared on one line are visible on the next.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/akhildatla/regfile/pkg/compiler"
	"github.com/akhildatla/regfile/pkg/dsl"
	"github.com/akhildatla/regfile/pkg/loader"
	"github.com/akhildatla/regfile/pkg/vm"
)

const (
	promptScript = "regfile> "
	promptASM    = "asm> "
	promptCont   = "...> "
)

// Mode represents the REPL input mode.
type Mode int

const (
	ModeScript Mode = iota // Script language mode
	ModeASM                // Assembly mode
)

func (m Mode) String() string {
	if m == ModeASM {
		return "asm"
	}
	return "script"
}

// REPL provides an interactive Read-Eval-Print Loop.
type REPL struct {
	mode        Mode
	vm          *vm.VM
	history     []string
	multiline   strings.Builder
	inMultiline bool
	interactive *bool
	done        bool

	log commonlog.Logger
}

// New creates a new REPL instance whose stack is built with opts.
func New(opts ...vm.StackOption) *REPL {
	return &REPL{
		mode:    ModeScript,
		vm:      vm.NewVM(opts...),
		history: []string{},
		log:     commonlog.GetLogger("regfile.repl"),
	}
}

// SetMode sets the REPL input mode.
func (r *REPL) SetMode(mode Mode) {
	r.mode = mode
}

// SetInteractive forces banner and prompts on or off. By default they are
// shown only when the input is a terminal.
func (r *REPL) SetInteractive(interactive bool) {
	r.interactive = &interactive
}

// SetMaxSteps bounds every evaluated line.
func (r *REPL) SetMaxSteps(n int64) {
	r.vm.SetMaxSteps(n)
}

// VM returns the machine the REPL evaluates on.
func (r *REPL) VM() *vm.VM {
	return r.vm
}

func (r *REPL) isInteractive(in io.Reader) bool {
	if r.interactive != nil {
		return *r.interactive
	}
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start runs the loop until the input ends or quit is entered.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	interactive := r.isInteractive(in)
	r.vm.SetOutput(out)
	r.done = false

	if interactive {
		fmt.Fprintln(out, "regfile REPL - register file stack machine")
		fmt.Fprintln(out, "Type 'help' for available commands, 'quit' to exit")
		fmt.Fprintln(out)
	}

	for !r.done {
		if interactive {
			switch {
			case r.inMultiline:
				fmt.Fprint(out, promptCont)
			case r.mode == ModeScript:
				fmt.Fprint(out, promptScript)
			default:
				fmt.Fprint(out, promptASM)
			}
		}

		if !scanner.Scan() {
			break
		}

		line := scanner.Text()

		// Handle multiline input
		if r.inMultiline {
			if line == "" {
				// End multiline input
				r.inMultiline = false
				input := r.multiline.String()
				r.multiline.Reset()
				r.eval(input, out)
			} else {
				r.multiline.WriteString(line)
				r.multiline.WriteString("\n")
			}
			continue
		}

		// Check for special commands
		if handled := r.handleCommand(line, out); handled {
			continue
		}

		// Check for multiline start (ends with \)
		if strings.HasSuffix(line, "\\") {
			r.inMultiline = true
			r.multiline.WriteString(strings.TrimSuffix(line, "\\"))
			r.multiline.WriteString("\n")
			continue
		}

		r.eval(line, out)
	}
}

func (r *REPL) handleCommand(line string, out io.Writer) bool {
	parts := strings.Fields(line)

	if len(parts) == 0 {
		return true
	}

	switch parts[0] {
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Goodbye!")
		r.done = true
		return true

	case "help", "h", "?":
		r.printHelp(out)
		return true

	case "mode":
		if len(parts) > 1 {
			switch parts[1] {
			case "script":
				r.mode = ModeScript
				fmt.Fprintln(out, "Switched to script mode")
			case "asm":
				r.mode = ModeASM
				fmt.Fprintln(out, "Switched to assembly mode")
			default:
				fmt.Fprintln(out, "Unknown mode. Use 'script' or 'asm'")
			}
		} else {
			fmt.Fprintf(out, "Current mode: %s\n", r.mode)
		}
		return true

	case "stack":
		fmt.Fprint(out, loader.StatsTable(r.vm.Stack().Stats()).Table())
		return true

	case "globals":
		r.listGlobals(out)
		return true

	case "reset":
		r.vm.Reset()
		r.vm.SetOutput(out)
		fmt.Fprintln(out, "Stack and globals cleared")
		return true

	case "history":
		for i, cmd := range r.history {
			fmt.Fprintf(out, "%3d: %s\n", i+1, cmd)
		}
		return true
	}

	return false
}

func (r *REPL) eval(input string, out io.Writer) {
	if strings.TrimSpace(input) == "" {
		return
	}

	r.history = append(r.history, input)

	var result int64
	var show bool
	var err error

	if r.mode == ModeScript {
		result, show, err = r.evalScript(input)
	} else {
		result, err = r.evalASM(input)
		show = true
	}

	if err != nil {
		r.unwind()
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	if show {
		fmt.Fprintf(out, "=> %d\n", result)
	}
}

// evalScript runs a script line. The result is shown only when the line
// ends in a return.
func (r *REPL) evalScript(input string) (int64, bool, error) {
	tokens := dsl.NewLexer(input).Tokenize()

	program, err := dsl.NewParser(tokens).Parse()
	if err != nil {
		return 0, false, err
	}

	asm, err := dsl.NewCompiler().Compile(program)
	if err != nil {
		return 0, false, err
	}

	result, err := r.evalASM(asm)
	if err != nil {
		return 0, false, err
	}

	returned := false
	if n := len(program.Statements); n > 0 {
		_, returned = program.Statements[n-1].(*dsl.ReturnStmt)
	}
	return result, returned, nil
}

func (r *REPL) evalASM(input string) (int64, error) {
	program, err := compiler.Compile(input)
	if err != nil {
		return 0, err
	}

	if err := r.vm.Load(program); err != nil {
		return 0, err
	}

	return r.vm.Execute()
}

// unwind pops the frames a failed line left behind so the next line starts
// at the outermost global file again.
func (r *REPL) unwind() {
	s := r.vm.Stack()
	for s.Len() > 1 {
		var err error
		if s.Current().IsForImplicitCall() {
			err = s.PopFunction()
		} else {
			err = s.PopGlobal()
		}
		if err != nil {
			r.log.Errorf("unwinding after error: %v", err)
			return
		}
	}
}

func (r *REPL) listGlobals(out io.Writer) {
	scope := r.vm.Globals()
	names := scope.Names()
	if len(names) == 0 {
		fmt.Fprintln(out, "No globals defined")
		return
	}

	fmt.Fprintln(out, "Globals:")
	for _, name := range names {
		v, _, err := scope.Get(name)
		if err != nil {
			fmt.Fprintf(out, "  %s = <%v>\n", name, err)
			continue
		}
		fmt.Fprintf(out, "  %s = %d\n", name, v.Int())
	}
}

func (r *REPL) printHelp(out io.Writer) {
	help := `
regfile REPL Commands:
  help, h, ?          Show this help message
  quit, exit, q       Exit the REPL
  mode [script|asm]   Show or set input mode
  stack               Show the register files on the stack
  globals             List global bindings and their values
  reset               Discard the stack and all globals
  history             Show command history

Script Examples:
  var x = 6 * 7
  eval { var y = x + 1 }
  call { var t = y; print t }
  return x + y

ASM Examples:
  DECLARE "g"
  LOAD_CONST R0, 5
  INIT_VAR R0, "g"
  PUSH_CALL
  GET_VAR R1, "g"
  POP_CALL
  HALT R1

Tips:
  - End a line with \ for multiline input
  - Press Enter on an empty line to execute multiline input
`
	fmt.Fprint(out, help)
}
