package jit

import (
	"github.com/chazu/abcvm/vm"
)

// Link returns the entry point of the program. Each call allocates a fresh
// register file; the scope chain starts at the scope the caller passes.
func (p *Program) Link() vm.Code {
	rt, m := p.rt, p.Method
	nregs := max(p.Analysis.MaxStack, 1)
	nscopes := p.Analysis.MaxScope + 1
	return func(scope *vm.Scope, self vm.Value, args []vm.Value) vm.Value {
		if scope == nil {
			scope = p.base
		}
		f := &frame{
			rt:     rt,
			m:      m,
			domain: scope.Domain(),
			regs:   make([]vm.Value, nregs),
			locals: rt.PrepareLocals(m, self, args),
			scopes: make([]*vm.Scope, nscopes),
		}
		f.scopes[0] = scope
		pc := 0
		for p.run(f, &pc) {
		}
		return f.result
	}
}

// run executes from *pc until the method returns (false) or a handler
// takes over after a throw (true, with *pc at the handler).
func (p *Program) run(f *frame, pc *int) (resume bool) {
	if len(p.Analysis.Handlers) > 0 {
		defer func() {
			if r := recover(); r != nil {
				if !p.catch(f, pc, r) {
					panic(r)
				}
				resume = true
			}
		}()
	}
	ops := p.ops
	for i := *pc; i != done; {
		*pc = i
		i = ops[i](f)
	}
	return false
}

// catch finds the first handler covering the faulting instruction whose
// type accepts the thrown value.
func (p *Program) catch(f *frame, pc *int, r any) bool {
	v, ok := f.rt.ThrownValue(r)
	if !ok {
		return false
	}
	pos := p.Instrs[*pc].Pos
	for k, h := range p.Analysis.Handlers {
		if pos < h.From || pos >= h.To {
			continue
		}
		if t := p.catchTo[k]; t != nil && !f.rt.IsType(f.domain, v, t) {
			continue
		}
		for i := range f.regs {
			f.regs[i] = nil
		}
		f.regs[0] = v
		*pc = h.Target
		return true
	}
	return false
}
