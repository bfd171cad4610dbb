// Package main provides the CLI entry point for regfile.
//
// Usage:
//
//	regfile run program.rasm           # Execute assembly file
//	regfile run -v program.rs          # Execute a script with statistics
//	regfile compile program.rasm       # Compile to bytecode (.rfbc)
//	regfile exec program.rfbc          # Execute compiled bytecode
//	regfile disasm program.rfbc        # Disassemble bytecode
//	regfile trace events.csv           # Replay a recorded stack trace
//	regfile inspect stack.cbor         # Show a dumped stack
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/akhildatla/regfile/internal/config"
	"github.com/akhildatla/regfile/pkg/compiler"
	"github.com/akhildatla/regfile/pkg/dsl"
	"github.com/akhildatla/regfile/pkg/embed"
	"github.com/akhildatla/regfile/pkg/loader"
	"github.com/akhildatla/regfile/pkg/optimizer"
	"github.com/akhildatla/regfile/pkg/repl"
	"github.com/akhildatla/regfile/pkg/vm"
)

// Version info, overridden at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var errUsage = errors.New("usage")

var log = commonlog.GetLogger("regfile.cli")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return printUsage(out)
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "run":
		return runCommand(rest, out)
	case "compile":
		return compileCommand(rest, out)
	case "exec":
		return execCommand(rest, out)
	case "disasm":
		return disasmCommand(rest, out)
	case "trace":
		return traceCommand(rest, out)
	case "inspect":
		return inspectCommand(rest, out)
	case "repl":
		return replCommand(rest, out)
	case "version":
		fmt.Fprintf(out, "regfile version %s\n", version)
		if commit != "none" {
			fmt.Fprintf(out, "  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Fprintf(out, "  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return printUsage(out)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// loadConfig reads an explicit config file, or searches upward from the
// working directory when path is empty. Logging is configured from the
// result, raised to debug when verbose is set.
func loadConfig(path string, verbose bool) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		var wd string
		if wd, err = os.Getwd(); err == nil {
			cfg, err = config.FindAndLoad(wd)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	verbosity := cfg.Log.Verbosity
	if verbose && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, cfg.LogFile())

	if cfg.Path != "" {
		log.Debugf("using config %s", cfg.Path)
	}
	return cfg, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runCommand(args []string, out io.Writer) error {
	fs := newFlagSet("run")
	verbose := fs.Bool("v", false, "print execution statistics")
	configPath := fs.String("config", "", "config file (default: nearest regfile.toml)")
	dump := fs.String("dump", "", "write the final stack to this CBOR file")
	optimize := fs.Bool("O", false, "enable optimizations")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: regfile run [-v] [-O] [-config file] [-dump file] <file>", errUsage)
	}

	cfg, err := loadConfig(*configPath, *verbose)
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	opts := []embed.Option{embed.WithConfig(cfg)}
	if *optimize {
		opts = append(opts, embed.WithOptimization())
	}
	if *verbose {
		opts = append(opts, embed.WithStats())
		fmt.Fprintf(out, "Executing: %s\n", path)
	}
	if *dump != "" {
		opts = append(opts, embed.WithSnapshot())
	}

	result, err := embed.ExecuteFile(path, opts...)
	if err != nil {
		return err
	}

	for _, v := range result.Output {
		fmt.Fprintf(out, "%d\n", v)
	}
	fmt.Fprintf(out, "%d\n", result.Value)

	if *verbose {
		printStats(out, result.Stats)
	}

	if *dump != "" {
		data, err := vm.MarshalSnapshot(result.Snapshot)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*dump, data, 0644); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		log.Debugf("wrote %d byte snapshot to %s", len(data), *dump)
	}

	return nil
}

func printStats(out io.Writer, st *vm.ExecutionStats) {
	if st == nil {
		return
	}
	fmt.Fprintf(out, "Steps:          %d\n", st.StepsExecuted)
	fmt.Fprintf(out, "Time:           %dns\n", st.ExecutionTimeNs)
	fmt.Fprintf(out, "Peak files:     %d\n", st.PeakFiles)
	fmt.Fprintf(out, "Peak slots:     %d\n", st.PeakSlots)
	fmt.Fprintf(out, "Reallocations:  %d\n", st.Reallocations)

	ops := make([]string, 0, len(st.OpCounts))
	for op := range st.OpCounts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(out, "  %-14s %d\n", op, st.OpCounts[op])
	}
}

// compileSource turns assembly or script source into a program, picking the
// front end by extension.
func compileSource(path string) (*vm.Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}

	asm := string(source)
	if strings.EqualFold(filepath.Ext(path), ".rs") {
		if asm, err = dsl.Compile(asm); err != nil {
			return nil, fmt.Errorf("compiling script: %w", err)
		}
	}

	program, err := compiler.Compile(asm)
	if err != nil {
		return nil, fmt.Errorf("compiling: %w", err)
	}
	return program, nil
}

func compileCommand(args []string, out io.Writer) error {
	fs := newFlagSet("compile")
	output := fs.String("o", "", "output file (default: input with .rfbc extension)")
	verbose := fs.Bool("v", false, "verbose output")
	optimize := fs.Bool("O", false, "enable optimizations")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: regfile compile [-O] [-v] <file> [out.rfbc]", errUsage)
	}

	inputPath := fs.Arg(0)
	outputPath := *output
	if outputPath == "" && fs.NArg() > 1 {
		outputPath = fs.Arg(1)
	}
	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + ".rfbc"
	}

	if *verbose {
		fmt.Fprintf(out, "Compiling: %s -> %s\n", inputPath, outputPath)
	}

	program, err := compileSource(inputPath)
	if err != nil {
		return err
	}

	if *optimize {
		before := len(program.Code)
		program = optimizer.New(optimizer.WithAllOptimizations()).Optimize(program)
		if *verbose {
			fmt.Fprintf(out, "Applied optimization: %d -> %d instructions\n", before, len(program.Code))
		}
	}

	bytecode, err := vm.SerializeProgram(program)
	if err != nil {
		return fmt.Errorf("serializing: %w", err)
	}
	if err := os.WriteFile(outputPath, bytecode, 0644); err != nil {
		return fmt.Errorf("writing bytecode: %w", err)
	}

	if *verbose {
		fmt.Fprintf(out, "Compiled %d instructions, %d constants, %d names\n",
			len(program.Code), len(program.Ints), len(program.Names))
		fmt.Fprintf(out, "Output: %s (%d bytes)\n", outputPath, len(bytecode))
	} else {
		fmt.Fprintf(out, "Compiled: %s\n", outputPath)
	}

	return nil
}

func execCommand(args []string, out io.Writer) error {
	fs := newFlagSet("exec")
	verbose := fs.Bool("v", false, "print execution statistics")
	configPath := fs.String("config", "", "config file (default: nearest regfile.toml)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: regfile exec [-v] <file.rfbc>", errUsage)
	}

	cfg, err := loadConfig(*configPath, *verbose)
	if err != nil {
		return err
	}

	program, err := vm.ReadProgramFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if *verbose {
		fmt.Fprintf(out, "Loaded %d instructions, %d constants, %d names\n",
			len(program.Code), len(program.Ints), len(program.Names))
	}

	opts := []embed.Option{embed.WithConfig(cfg)}
	if *verbose {
		opts = append(opts, embed.WithStats())
	}
	result, err := embed.ExecuteProgram(program, opts...)
	if err != nil {
		return fmt.Errorf("executing: %w", err)
	}

	for _, v := range result.Output {
		fmt.Fprintf(out, "%d\n", v)
	}
	fmt.Fprintf(out, "%d\n", result.Value)
	if *verbose {
		printStats(out, result.Stats)
	}
	return nil
}

func disasmCommand(args []string, out io.Writer) error {
	fs := newFlagSet("disasm")
	output := fs.String("o", "", "output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: regfile disasm <file.rfbc> [-o output.rasm]", errUsage)
	}

	program, err := vm.ReadProgramFile(fs.Arg(0))
	if err != nil {
		return err
	}

	asm := vm.Disassemble(program)
	if *output != "" {
		if err := os.WriteFile(*output, []byte(asm), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Fprintf(out, "Disassembled to: %s\n", *output)
		return nil
	}

	fmt.Fprint(out, asm)
	return nil
}

func traceCommand(args []string, out io.Writer) error {
	fs := newFlagSet("trace")
	asmOnly := fs.Bool("asm", false, "print the replay program instead of running it")
	configPath := fs.String("config", "", "config file (default: nearest regfile.toml)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: regfile trace [-asm] <file.csv|file.json|file.parquet>", errUsage)
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	if *asmOnly {
		df, err := loader.LoadTrace(context.Background(), path)
		if err != nil {
			return err
		}
		asm, err := loader.TraceToAssembly(df)
		if err != nil {
			return err
		}
		fmt.Fprint(out, asm)
		return nil
	}

	result, err := embed.ExecuteFile(path, embed.WithConfig(cfg))
	if err != nil {
		return err
	}
	for _, v := range result.Output {
		fmt.Fprintf(out, "%d\n", v)
	}
	fmt.Fprintf(out, "%d\n", result.Value)
	return nil
}

func inspectCommand(args []string, out io.Writer) error {
	fs := newFlagSet("inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: regfile inspect <snapshot.cbor>", errUsage)
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	snap, err := vm.UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	stack, err := vm.RestoreStack(snap)
	if err != nil {
		return err
	}
	defer stack.Close()

	st := stack.Stats()
	fmt.Fprint(out, loader.StatsTable(st).Table())

	roots := vm.NewRootSet()
	stack.Mark(roots)
	fmt.Fprintf(out, "Files: %d, implicit calls: %d, slots: %d, roots: %d\n",
		stack.Len(), stack.ImplicitCallDepth(), st.TotalSlots(), roots.Roots())
	return nil
}

func replCommand(args []string, out io.Writer) error {
	fs := newFlagSet("repl")
	asmMode := fs.Bool("asm", false, "start in assembly mode (default: script mode)")
	configPath := fs.String("config", "", "config file (default: nearest regfile.toml)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return err
	}

	r := repl.New(cfg.StackOptions()...)
	r.SetMaxSteps(cfg.Limits.MaxInstructions)
	if *asmMode {
		r.SetMode(repl.ModeASM)
	}

	r.Start(os.Stdin, out)
	return nil
}

func printUsage(out io.Writer) error {
	fmt.Fprintln(out, `regfile - register file stack machine

Usage:
  regfile <command> [arguments]

Commands:
  run <file>              Execute a .rasm, .rs, .rfbc or trace file
  compile <file> [out]    Compile assembly or script to bytecode (.rfbc)
  exec <file.rfbc>        Execute compiled bytecode
  disasm <file.rfbc>      Disassemble bytecode to assembly
  trace <file>            Replay a .csv, .json or .parquet stack trace
  inspect <file.cbor>     Show a stack snapshot written by run -dump
  repl                    Start interactive REPL
  version                 Print version information
  help                    Show this help message

Run Options:
  -v                      Print execution statistics and debug logs
  -O                      Enable optimizations
  -config <file>          Config file (default: nearest regfile.toml)
  -dump <file>            Write the final stack as CBOR

Compile Options:
  -o <file>               Output file (default: input with .rfbc extension)
  -O                      Enable optimizations
  -v                      Verbose output

Trace Options:
  -asm                    Print the replay program instead of running it

REPL Options:
  -asm                    Start in assembly mode (default: script mode)

Examples:
  regfile run program.rasm
  regfile run -dump stack.cbor program.rs
  regfile compile -O program.rs program.rfbc
  regfile exec program.rfbc
  regfile trace -asm events.csv
  regfile inspect stack.cbor`)
	return nil
}
