// Package codegen drives a LIR module through the backend: liveness,
// register allocation and instruction selection per function, then the
// data section, then either an object or a JIT image.
package codegen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/codecache"
	"github.com/colorfulnotion/lirx64/data"
	"github.com/colorfulnotion/lirx64/isel"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/liveness"
	"github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/regalloc"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

type Compiler struct {
	cfg    Config
	cc     *abi.CallConv
	cache  *codecache.Cache
	tracer trace.Tracer
}

type Option func(*Compiler)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Compiler) { c.tracer = tp.Tracer(tracerName) }
}

// WithCache uses an already open cache instead of cfg.CacheDir.
func WithCache(cache *codecache.Cache) Option {
	return func(c *Compiler) { c.cache = cache }
}

func NewCompiler(cfg Config, opts ...Option) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cc, err := abi.Lookup(cfg.CallConv)
	if err != nil {
		return nil, err
	}
	c := &Compiler{cfg: cfg, cc: cc, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil && cfg.CacheDir != "" {
		if c.cache, err = codecache.Open(cfg.CacheDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Compiler) Config() Config          { return c.cfg }
func (c *Compiler) CallConv() *abi.CallConv { return c.cc }
func (c *Compiler) Cache() *codecache.Cache { return c.cache }

func (c *Compiler) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// Function is one compiled function.
type Function struct {
	Name      string
	Code      *asm.Code
	Spills    int
	FrameSize int32
	Cached    bool
}

// Result is a compiled module. Functions keep module order.
type Result struct {
	Mode    Mode
	Symbols *symbols.Table
	Funcs   []*Function
	Data    *data.Section
	Emitted *data.Emitted
}

// CompileModule compiles every function of m and its data section. All
// symbols are interned before any function is selected, so functions can
// be compiled concurrently. The first failing function aborts the module.
func (c *Compiler) CompileModule(ctx context.Context, m *lir.Module) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "CompileModule")
	defer span.End()

	if err := m.Validate(); err != nil {
		return nil, fail(span, err)
	}
	syms, err := declare(m)
	if err != nil {
		return nil, fail(span, err)
	}
	res := &Result{Mode: c.cfg.Mode, Symbols: syms, Funcs: make([]*Function, len(m.Funcs))}

	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Jobs > 0 {
		g.SetLimit(c.cfg.Jobs)
	}
	for i, fn := range m.Funcs {
		i, fn := i, fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := c.compileFunc(gctx, fn, syms)
			if err != nil {
				return err
			}
			res.Funcs[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fail(span, err)
	}

	res.Data = data.NewSection(syms)
	if err := res.Data.AddGlobals(m); err != nil {
		return nil, fail(span, err)
	}
	if res.Emitted, err = res.Data.Emit(); err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(
		attribute.Int("funcs", len(m.Funcs)),
		attribute.Int("text.size", res.TextSize()),
		attribute.Int("data.size", len(res.Emitted.Bytes)),
	)
	log.Debug(log.CodegenMonitoring, "module compiled", "funcs", len(m.Funcs), "text", res.TextSize(), "data", len(res.Emitted.Bytes))
	return res, nil
}

// declare interns every symbol m defines or references. Definitions clash
// with each other; externs never clash.
func declare(m *lir.Module) (*symbols.Table, error) {
	syms := symbols.NewTable()
	for _, fn := range m.Funcs {
		if _, err := syms.Declare(fn.Name, fn.Linkage); err != nil {
			return nil, err
		}
	}
	for _, g := range m.Globals {
		if _, err := syms.Declare(g.Name, g.Linkage); err != nil {
			return nil, err
		}
	}
	for _, name := range m.Externs {
		syms.Intern(name, symbols.External)
	}
	for _, fn := range m.Funcs {
		for _, b := range fn.Blocks {
			for _, in := range b.Instrs {
				if in.Op == lir.OpCall {
					syms.Intern(in.Callee, symbols.External)
				}
				for _, a := range in.Args {
					if a.Kind == lir.ArgSymbol {
						syms.Intern(a.Symbol, symbols.External)
					}
				}
			}
		}
	}
	return syms, nil
}

func (c *Compiler) compileFunc(ctx context.Context, fn *lir.Func, syms *symbols.Table) (*Function, error) {
	_, span := c.tracer.Start(ctx, "CompileFunc", trace.WithAttributes(attribute.String("func", fn.Name)))
	defer span.End()

	var key codecache.Key
	if c.cache != nil {
		key = codecache.KeyFor(cacheText(fn, syms), c.cc.Name)
		e, ok, err := c.cache.Get(key)
		if err != nil {
			log.Warn(log.CacheMonitoring, "cache read failed", "func", fn.Name, "err", err)
		} else if ok {
			f := &Function{Name: fn.Name, Code: e.Rebind(syms), Spills: e.Spills, FrameSize: int32(e.Frame), Cached: true}
			span.SetAttributes(attribute.Bool("cached", true), attribute.Int("code.size", len(f.Code.Bytes)))
			return f, nil
		}
	}

	lv := liveness.Analyze(fn, c.cc)
	alloc := regalloc.Allocate(lv, c.cc)
	code, err := isel.Select(fn, alloc, c.cc, syms)
	if err != nil {
		return nil, fail(span, fmt.Errorf("function @%s: %w", fn.Name, err))
	}
	f := &Function{Name: fn.Name, Code: code, Spills: len(alloc.Spills()), FrameSize: alloc.FrameSize()}
	span.SetAttributes(attribute.Int("code.size", len(code.Bytes)), attribute.Int("spills", f.Spills))
	log.Debug(log.CodegenMonitoring, "function compiled", "func", fn.Name, "bytes", len(code.Bytes), "relocs", len(code.Relocs), "spills", f.Spills)

	if c.cache != nil {
		e := codecache.NewEntry(code, syms)
		e.Spills, e.Frame = f.Spills, int(f.FrameSize)
		if err := c.cache.Put(key, e); err != nil {
			log.Warn(log.CacheMonitoring, "cache write failed", "func", fn.Name, "err", err)
		}
	}
	return f, nil
}

// cacheText is the function text plus the linkage of everything it calls;
// calls to external symbols are lowered differently.
func cacheText(fn *lir.Func, syms *symbols.Table) string {
	seen := map[string]bool{}
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if in.Op == lir.OpCall {
				seen[in.Callee] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(fn.String())
	for _, n := range names {
		linkage := symbols.External
		if id, ok := syms.Lookup(n); ok {
			linkage = syms.Get(id).Linkage
		}
		fmt.Fprintf(&sb, "; @%s %s\n", n, linkage)
	}
	return sb.String()
}

func fail(span trace.Span, err error) error {
	if tag := x64errors.Tag(err); tag != "" {
		span.SetAttributes(attribute.String("error.kind", tag))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Pressure is the register pressure profile of one function.
type Pressure struct {
	Func        string `json:"func"`
	PerPosition []int  `json:"per_position"`
	MaxGP       int    `json:"max_gp"`
	MaxVector   int    `json:"max_vector"`
}

func (c *Compiler) Pressure(fn *lir.Func) Pressure {
	lv := liveness.Analyze(fn, c.cc)
	gp, vec := lv.MaxPressure()
	return Pressure{Func: fn.Name, PerPosition: lv.Pressure(), MaxGP: gp, MaxVector: vec}
}
