package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/codegen"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/link"
)

func readModule(path string) (*lir.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return lir.Parse(string(src))
}

func parseExterns(in map[string]string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(in))
	for name, v := range in {
		addr, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("extern %s: %w", name, err)
		}
		out[name] = addr
	}
	return out, nil
}

func newCompileCmd() *cobra.Command {
	var (
		mode     string
		cache    string
		jobs     int
		base     string
		externs  map[string]string
		load     bool
		call     string
		callArgs []int64
	)
	cmd := &cobra.Command{
		Use:   "compile <module.lir>",
		Short: "Compile a LIR module and print the listing, symbols and relocations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("mode") {
				cfg.Mode = codegen.Mode(mode)
			}
			if f.Changed("cache") {
				cfg.CacheDir = cache
			}
			if f.Changed("jobs") {
				cfg.Jobs = jobs
			}
			m, err := readModule(args[0])
			if err != nil {
				return err
			}
			c, err := codegen.NewCompiler(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.CompileModule(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Print(res.Listing())
			fmt.Println()

			switch cfg.Mode {
			case codegen.ModeObject:
				obj, err := res.Object()
				if err != nil {
					return err
				}
				fmt.Print(obj.Dump())
			case codegen.ModeJIT:
				ext, err := parseExterns(externs)
				if err != nil {
					return err
				}
				addr, err := strconv.ParseUint(base, 0, 64)
				if err != nil {
					return fmt.Errorf("base: %w", err)
				}
				if call != "" && !load {
					return fmt.Errorf("--call needs --load")
				}
				if err := printImage(res, addr, ext, load, call, callArgs); err != nil {
					return err
				}
			}
			printSizes(res, c)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(codegen.ModeObject), "output mode: object or jit")
	cmd.Flags().StringVar(&cache, "cache", "", "compiled-function cache directory")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "functions compiled concurrently (0 = config default)")
	cmd.Flags().StringVar(&base, "base", "0x400000", "load address used to resolve a jit image")
	cmd.Flags().StringToStringVar(&externs, "extern", nil, "external symbol addresses, name=0xaddr")
	cmd.Flags().BoolVar(&load, "load", false, "map the jit image into this process and print the real addresses")
	cmd.Flags().StringVar(&call, "call", "", "with --load, run this function and print its result")
	cmd.Flags().Int64SliceVar(&callArgs, "args", nil, "integer arguments for --call")
	return cmd
}

func printImage(res *codegen.Result, base uint64, externs map[string]uint64, load bool, call string, args []int64) error {
	img, err := res.Image()
	if err != nil {
		return err
	}
	resolved, err := img.Resolve(base, externs)
	if err != nil {
		return err
	}
	syms := img.Symbols()
	names := make([]string, 0, len(syms))
	for n := range syms {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return syms[names[i]].Offset < syms[names[j]].Offset })

	fmt.Printf("image at %#x, %d bytes\n", base, len(resolved))
	for _, n := range names {
		e := syms[n]
		fmt.Printf("  %#010x %-5s %-24s %d bytes\n", base+uint64(e.Offset), e.Section, n, e.Length)
	}
	for off := 0; off < len(resolved); off += 16 {
		end := min(off+16, len(resolved))
		fmt.Printf("  %06x  %s\n", off, hex.EncodeToString(resolved[off:end]))
	}

	if !load {
		return nil
	}
	exe, err := link.Load(img, externs)
	if err != nil {
		return err
	}
	defer exe.Close()
	fmt.Printf("loaded at %#x\n", exe.Base())
	for _, n := range names {
		addr, _ := exe.Addr(n)
		fmt.Printf("  %#x %s\n", addr, n)
	}
	if call == "" {
		return nil
	}
	r, err := exe.Call(call, args...)
	if err != nil {
		return err
	}
	fmt.Printf("%s(%s) = %d\n", call, strings.Trim(fmt.Sprint(args), "[]"), r)
	return nil
}

func printSizes(res *codegen.Result, c *codegen.Compiler) {
	var spills, cached int
	for _, f := range res.Funcs {
		spills += f.Spills
		if f.Cached {
			cached++
		}
	}
	fmt.Printf("\ntext %s, data %s, %d functions (%d cached), %d spills\n",
		units.HumanSize(float64(res.TextSize())),
		units.HumanSize(float64(len(res.Emitted.Bytes))),
		len(res.Funcs), cached, spills)
	if cache := c.Cache(); cache != nil {
		hits, misses := cache.Stats()
		fmt.Printf("cache: %d hits, %d misses\n", hits, misses)
	}
}

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <hex>...",
		Short: "Disassemble hex encoded x86-64 bytes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := decodeHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			fmt.Print(asm.Disassemble(code))
			return nil
		},
	}
}

// decodeHex accepts "48 89 c8", "4889c8" and 0x prefixed pairs.
func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", "0x", "", ",", "", "\t", "").Replace(s)
	return hex.DecodeString(s)
}

func newSelftestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check the encoder against known encodings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := asm.SelfTest(); err != nil {
				return err
			}
			fmt.Println("encoder self test passed")
			return nil
		},
	}
}

// compileSource is shared by the repl.
func compileSource(ctx context.Context, src string) (string, error) {
	m, err := lir.Parse(src)
	if err != nil {
		return "", err
	}
	c, err := codegen.NewCompiler(cfg)
	if err != nil {
		return "", err
	}
	defer c.Close()
	res, err := c.CompileModule(ctx, m)
	if err != nil {
		return "", err
	}
	return res.Listing(), nil
}
