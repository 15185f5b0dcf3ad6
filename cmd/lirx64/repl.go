package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dop251/goja"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/codegen"
	"github.com/colorfulnotion/lirx64/lir"
)

// console is a JavaScript session with the backend bound as functions.
type console struct {
	vm  *goja.Runtime
	ctx context.Context
	out io.Writer
}

func newConsole(ctx context.Context, out io.Writer) (*console, error) {
	c := &console{vm: goja.New(), ctx: ctx, out: out}
	bindings := map[string]any{
		// compile(src) returns the listing of a LIR module
		"compile": func(src string) (string, error) { return compileSource(c.ctx, src) },
		// disasm(hex) disassembles x86-64 bytes
		"disasm": func(s string) (string, error) {
			code, err := decodeHex(s)
			if err != nil {
				return "", err
			}
			return asm.Disassemble(code), nil
		},
		// format(src) parses and reprints a LIR module
		"format": func(src string) (string, error) {
			m, err := lir.Parse(src)
			if err != nil {
				return "", err
			}
			return m.String(), nil
		},
		// pressure(src) returns the peak register pressure per function
		"pressure": func(src string) (map[string]any, error) {
			m, err := lir.Parse(src)
			if err != nil {
				return nil, err
			}
			comp, err := codegen.NewCompiler(cfg)
			if err != nil {
				return nil, err
			}
			defer comp.Close()
			out := map[string]any{}
			for _, fn := range m.Funcs {
				p := comp.Pressure(fn)
				out[fn.Name] = map[string]any{"gp": p.MaxGP, "vector": p.MaxVector}
			}
			return out, nil
		},
		"load": func(path string) (string, error) {
			b, err := os.ReadFile(path)
			return string(b), err
		},
		"selftest": func() error { return asm.SelfTest() },
		"print": func(args ...goja.Value) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			fmt.Fprintln(c.out, strings.Join(parts, " "))
		},
	}
	for name, fn := range bindings {
		if err := c.vm.Set(name, fn); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return c, nil
}

// Eval runs one line and renders its value; undefined renders as "".
func (c *console) Eval(line string) (string, error) {
	v, err := c.vm.RunString(line)
	if err != nil {
		return "", err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	if obj, ok := v.Export().(map[string]any); ok {
		return fmt.Sprint(obj), nil
	}
	return v.String(), nil
}

func newReplCmd() *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive JavaScript console over the backend",
		Long: `Interactive JavaScript console. Bound functions:
  compile(src)   listing of a LIR module
  disasm(hex)    AT&T listing of hex bytes
  format(src)    LIR module reprinted
  pressure(src)  peak register pressure per function
  load(path)     file contents
  selftest()     encoder self test
  print(...)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "lirx64> ",
				HistoryFile: history,
			})
			if err != nil {
				return fmt.Errorf("failed to start readline: %w", err)
			}
			defer rl.Close()

			con, err := newConsole(cmd.Context(), rl.Stdout())
			if err != nil {
				return err
			}
			fmt.Fprintln(rl.Stdout(), "lirx64 console; try compile(load(\"module.lir\")). Type exit to quit.")
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if err != nil {
					return nil
				}
				line = strings.TrimSpace(line)
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				out, err := con.Eval(line)
				if err != nil {
					fmt.Fprintln(rl.Stderr(), "error:", err)
					continue
				}
				if out != "" {
					fmt.Fprintln(rl.Stdout(), strings.TrimRight(out, "\n"))
				}
			}
		},
	}
	cmd.Flags().StringVar(&history, "history", filepath.Join(os.TempDir(), "lirx64_history"), "readline history file")
	return cmd
}
