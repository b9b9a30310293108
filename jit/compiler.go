package jit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/vm"
)

// Compiler is the runtime's method compiler. It caches the decoded and
// analyzed form of each body so that methods sharing a body (the same
// function closed over different scopes) are only verified once, and it
// remembers bodies that failed so they are not retried.
type Compiler struct {
	// OutputDir receives a listing of every compiled method when set.
	OutputDir string

	log commonlog.Logger

	mu       sync.Mutex
	analyzed map[*abc.MethodBody]*analyzed
	failed   map[*abc.MethodBody]error

	methodsCompiled uint64
	failures        uint64
	compilationTime uint64 // nanoseconds
}

type analyzed struct {
	instrs   []*Instruction
	analysis *Analysis
}

// Stats holds compiler statistics.
type Stats struct {
	MethodsCompiled uint64
	Failures        uint64
	CompilationTime time.Duration
}

// New creates a compiler.
func New() *Compiler {
	return &Compiler{
		log:      commonlog.GetLogger("abcvm.jit"),
		analyzed: make(map[*abc.MethodBody]*analyzed),
		failed:   make(map[*abc.MethodBody]error),
	}
}

// Compile implements vm.MethodCompiler.
func (c *Compiler) Compile(rt *vm.Runtime, m *vm.Method) (vm.Code, error) {
	p, err := c.Program(rt, m)
	if err != nil {
		return nil, err
	}
	return p.Link(), nil
}

// Program runs the compilation stages for m and returns the generated
// program without linking it.
func (c *Compiler) Program(rt *vm.Runtime, m *vm.Method) (*Program, error) {
	if m.Body == nil {
		return nil, fmt.Errorf("jit: %s has no body", m)
	}
	start := time.Now()
	a, err := c.analyze(m)
	if err != nil {
		atomic.AddUint64(&c.failures, 1)
		c.log.Warningf("%s: %s", m, err)
		return nil, err
	}
	p, err := Generate(rt, m, a.instrs, a.analysis)
	if err != nil {
		atomic.AddUint64(&c.failures, 1)
		c.log.Warningf("%s: %s", m, err)
		return nil, err
	}
	atomic.AddUint64(&c.methodsCompiled, 1)
	atomic.AddUint64(&c.compilationTime, uint64(time.Since(start)))
	c.log.Debugf("compiled %s: %d instructions, stack %d, scope %d, %d fast lookups",
		m, len(a.instrs), a.analysis.MaxStack, a.analysis.MaxScope, p.FastSites)

	if c.OutputDir != "" {
		c.writeListing(p)
	}
	return p, nil
}

func (c *Compiler) analyze(m *vm.Method) (*analyzed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failed[m.Body]; ok {
		return nil, err
	}
	if a, ok := c.analyzed[m.Body]; ok {
		return a, nil
	}
	a, err := analyzeBody(m.Module(), m.Body)
	if err != nil {
		c.failed[m.Body] = err
		return nil, err
	}
	c.analyzed[m.Body] = a
	return a, nil
}

func analyzeBody(mod *abc.Module, body *abc.MethodBody) (*analyzed, error) {
	instrs, err := Decode(mod, body)
	if err != nil {
		return nil, err
	}
	a, err := Analyze(instrs, body)
	if err != nil {
		return nil, err
	}
	return &analyzed{instrs, a}, nil
}

// Stats returns compiler statistics.
func (c *Compiler) Stats() Stats {
	return Stats{
		MethodsCompiled: atomic.LoadUint64(&c.methodsCompiled),
		Failures:        atomic.LoadUint64(&c.failures),
		CompilationTime: time.Duration(atomic.LoadUint64(&c.compilationTime)),
	}
}

// Reset drops cached analyses and failure records.
func (c *Compiler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyzed = make(map[*abc.MethodBody]*analyzed)
	c.failed = make(map[*abc.MethodBody]error)
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// Listing formats p one instruction per line with the incoming stack and
// scope depths.
func Listing(p *Program) string {
	var sb strings.Builder
	a := p.Analysis
	fmt.Fprintf(&sb, "; %s\n; max stack %d, max scope %d, %d names, %d handlers\n",
		p.Method, a.MaxStack, a.MaxScope, len(p.Names), len(a.Handlers))
	for i, in := range p.Instrs {
		if !a.Reachable(i) {
			fmt.Fprintf(&sb, "   -/-  %s\n", in)
			continue
		}
		fmt.Fprintf(&sb, "%4d/%-2d %s", a.Stack[i], a.Scope[i], in)
		if len(in.Targets) > 0 {
			fmt.Fprintf(&sb, " -> %v", in.Targets)
		}
		sb.WriteByte('\n')
	}
	for _, h := range a.Handlers {
		fmt.Fprintf(&sb, "; handler %d: [%d, %d) -> %d\n", h.Index, h.From, h.To, h.Target)
	}
	return sb.String()
}

func (c *Compiler) writeListing(p *Program) {
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		c.log.Errorf("creating listing dir: %s", err)
		return
	}
	name := fmt.Sprintf("%s_%d.lst", sanitizeName(p.Method.String()), p.Method.Info.Index)
	if err := os.WriteFile(filepath.Join(c.OutputDir, name), []byte(Listing(p)), 0644); err != nil {
		c.log.Errorf("writing listing: %s", err)
	}
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}
