package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/akhildatla/regfile/pkg/vm"
)

func run(t *testing.T, r *REPL, input string) string {
	t.Helper()
	var out bytes.Buffer
	r.SetInteractive(false)
	r.Start(strings.NewReader(input), &out)
	return out.String()
}

func TestREPL_New(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("New returned nil")
	}
	if r.mode != ModeScript {
		t.Errorf("expected script mode, got %v", r.mode)
	}
	if r.VM().Stack().Len() != 1 {
		t.Errorf("expected one register file, got %d", r.VM().Stack().Len())
	}
}

func TestREPL_StackOptions(t *testing.T) {
	r := New(vm.WithMaxSize(64))
	if got := r.VM().Stack().Current().MaxSize(); got != 64 {
		t.Errorf("expected max size 64, got %d", got)
	}
}

func TestREPL_SetMode(t *testing.T) {
	r := New()
	r.SetMode(ModeASM)
	if r.mode != ModeASM {
		t.Errorf("expected ASM mode, got %v", r.mode)
	}
	r.SetMode(ModeScript)
	if r.mode != ModeScript {
		t.Errorf("expected script mode, got %v", r.mode)
	}
}

func TestREPL_HandleCommand_Help(t *testing.T) {
	r := New()
	var out bytes.Buffer

	for _, cmd := range []string{"help", "h", "?"} {
		out.Reset()
		if !r.handleCommand(cmd, &out) {
			t.Errorf("expected help command '%s' to be handled", cmd)
		}
		if !strings.Contains(out.String(), "regfile REPL Commands") {
			t.Errorf("expected help text, got: %s", out.String())
		}
	}
}

func TestREPL_HandleCommand_Quit(t *testing.T) {
	for _, cmd := range []string{"quit", "exit", "q"} {
		r := New()
		var out bytes.Buffer
		if !r.handleCommand(cmd, &out) {
			t.Errorf("expected quit command '%s' to be handled", cmd)
		}
		if !strings.Contains(out.String(), "Goodbye") {
			t.Errorf("expected goodbye message, got: %s", out.String())
		}
		if !r.done {
			t.Errorf("expected '%s' to end the loop", cmd)
		}
	}
}

func TestREPL_HandleCommand_Mode(t *testing.T) {
	r := New()
	var out bytes.Buffer

	r.handleCommand("mode", &out)
	if !strings.Contains(out.String(), "Current mode: script") {
		t.Errorf("expected current mode, got: %s", out.String())
	}

	out.Reset()
	r.handleCommand("mode asm", &out)
	if r.mode != ModeASM {
		t.Errorf("expected ASM mode, got %v", r.mode)
	}

	out.Reset()
	r.handleCommand("mode sql", &out)
	if !strings.Contains(out.String(), "Unknown mode") {
		t.Errorf("expected unknown mode message, got: %s", out.String())
	}
}

func TestREPL_HandleCommand_Empty(t *testing.T) {
	r := New()
	var out bytes.Buffer
	if !r.handleCommand("   ", &out) {
		t.Error("expected blank line to be handled")
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got: %s", out.String())
	}
}

func TestREPL_HandleCommand_Unknown(t *testing.T) {
	r := New()
	var out bytes.Buffer
	if r.handleCommand("var x = 1", &out) {
		t.Error("expected script input not to be handled as a command")
	}
}

func TestREPL_Eval_Script(t *testing.T) {
	r := New()
	var out bytes.Buffer

	r.eval("var x = 6 * 7", &out)
	if out.Len() != 0 {
		t.Errorf("expected no result for a declaration, got: %s", out.String())
	}

	r.eval("return x + 1", &out)
	if !strings.Contains(out.String(), "=> 43") {
		t.Errorf("expected '=> 43', got: %s", out.String())
	}
}

func TestREPL_Eval_ASM(t *testing.T) {
	r := New()
	r.SetMode(ModeASM)
	var out bytes.Buffer

	r.eval("LOAD_CONST R0, 42\nHALT R0", &out)
	if !strings.Contains(out.String(), "=> 42") {
		t.Errorf("expected '=> 42', got: %s", out.String())
	}
}

func TestREPL_Eval_ASM_Error(t *testing.T) {
	r := New()
	r.SetMode(ModeASM)
	var out bytes.Buffer

	r.eval("BOGUS R0", &out)
	if !strings.Contains(out.String(), "Error:") {
		t.Errorf("expected error message, got: %s", out.String())
	}
}

func TestREPL_Eval_ErrorUnwindsStack(t *testing.T) {
	r := New()
	var out bytes.Buffer

	r.eval("eval { call { print missing } }", &out)
	if !strings.Contains(out.String(), "Error:") {
		t.Fatalf("expected an error, got: %s", out.String())
	}
	if r.VM().Stack().Len() != 1 {
		t.Errorf("expected the stack to be unwound, got %d files", r.VM().Stack().Len())
	}
	if r.VM().Stack().ImplicitCallDepth() != 0 {
		t.Errorf("expected no implicit calls, got %d", r.VM().Stack().ImplicitCallDepth())
	}
}

func TestREPL_Eval_History(t *testing.T) {
	r := New()
	var out bytes.Buffer

	r.eval("var a = 1", &out)
	r.eval("var b = 2", &out)
	r.eval("   ", &out)

	if len(r.history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(r.history))
	}

	out.Reset()
	r.handleCommand("history", &out)
	if !strings.Contains(out.String(), "  2: var b = 2") {
		t.Errorf("expected numbered history, got: %s", out.String())
	}
}

func TestREPL_Start_GlobalsPersist(t *testing.T) {
	output := run(t, New(), `var x = 1
eval { x = x + 1 }
call { var t = x * 10; print t }
return x
quit
return 99
`)

	if !strings.Contains(output, "20\n") {
		t.Errorf("expected printed 20, got: %s", output)
	}
	if !strings.Contains(output, "=> 2") {
		t.Errorf("expected '=> 2', got: %s", output)
	}
	if strings.Contains(output, "=> 99") {
		t.Errorf("expected quit to stop the loop, got: %s", output)
	}
}

func TestREPL_Start_MultilineInput(t *testing.T) {
	output := run(t, New(), "eval { \\\nvar y = 5\n}\n\nreturn y\n")

	if !strings.Contains(output, "=> 5") {
		t.Errorf("expected '=> 5', got: %s", output)
	}
}

func TestREPL_Start_ModeSwitch(t *testing.T) {
	output := run(t, New(), "var g = 7\nmode asm\nGET_VAR R0, \"g\"\nHALT R0\n")

	if !strings.Contains(output, "Switched to assembly mode") {
		t.Errorf("expected mode switch message, got: %s", output)
	}
	// Each assembly line runs on its own; the second one returns R0 = 0.
	if !strings.Contains(output, "=> 0") {
		t.Errorf("expected '=> 0', got: %s", output)
	}
}

func TestREPL_Start_Interactive(t *testing.T) {
	r := New()
	var out bytes.Buffer
	r.SetInteractive(true)
	r.Start(strings.NewReader("quit\n"), &out)

	if !strings.Contains(out.String(), "regfile REPL") {
		t.Errorf("expected banner, got: %s", out.String())
	}
	if !strings.Contains(out.String(), promptScript) {
		t.Errorf("expected prompt, got: %s", out.String())
	}
}

func TestREPL_Start_NonTerminalHasNoPrompt(t *testing.T) {
	r := New()
	var out bytes.Buffer
	r.Start(strings.NewReader("return 1\n"), &out)

	if strings.Contains(out.String(), promptScript) {
		t.Errorf("expected no prompt for non-terminal input, got: %s", out.String())
	}
}

func TestREPL_Globals(t *testing.T) {
	r := New()
	var out bytes.Buffer

	r.handleCommand("globals", &out)
	if !strings.Contains(out.String(), "No globals defined") {
		t.Errorf("expected empty message, got: %s", out.String())
	}

	r.eval("var a = 3", &out)
	r.eval("dyn = 4", &out)

	out.Reset()
	r.handleCommand("globals", &out)
	for _, want := range []string{"a = 3", "dyn = 4"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q, got: %s", want, out.String())
		}
	}
}

func TestREPL_Stack(t *testing.T) {
	r := New()
	var out bytes.Buffer

	r.eval("var a = 1", &out)
	out.Reset()
	r.handleCommand("stack", &out)

	if !strings.Contains(out.String(), "global") {
		t.Errorf("expected a table row for the global file, got: %s", out.String())
	}
}

func TestREPL_Reset(t *testing.T) {
	r := New()
	var out bytes.Buffer

	r.eval("var a = 1", &out)
	r.handleCommand("reset", &out)

	if r.VM().Globals().Has("a") {
		t.Error("expected globals to be cleared")
	}
	if !strings.Contains(out.String(), "cleared") {
		t.Errorf("expected reset message, got: %s", out.String())
	}
}
