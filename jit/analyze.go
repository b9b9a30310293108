package jit

import (
	"fmt"

	"github.com/chazu/abcvm/abc"
)

// Handler is an exception table entry with its target resolved to an
// instruction index.
type Handler struct {
	From, To int // byte range covered, [From, To)
	Target   int // instruction index
	Info     *abc.ExceptionInfo
	Index    int
}

// Analysis holds the depth annotation of one method.
type Analysis struct {
	// Stack and Scope are the incoming depths of each instruction, -1 for
	// unreachable ones. Scope depths count frames pushed by the method
	// itself.
	Stack []int
	Scope []int

	MaxStack int
	MaxScope int
	Handlers []Handler
}

// Reachable reports whether instruction i is reached from the entry or a
// handler.
func (a *Analysis) Reachable(i int) bool { return a.Stack[i] >= 0 }

// Analyze propagates operand and scope stack depths from instruction 0 and
// from every handler target. A merge point reached with two different
// depths is rejected instead of taking the first writer's depth.
func Analyze(instrs []*Instruction, body *abc.MethodBody) (*Analysis, error) {
	n := len(instrs)
	a := &Analysis{Stack: make([]int, n), Scope: make([]int, n)}
	for i := range instrs {
		a.Stack[i], a.Scope[i] = -1, -1
	}
	if n == 0 {
		return a, nil
	}

	byPos := make(map[int]int, n)
	for i, in := range instrs {
		byPos[in.Pos] = i
	}
	for i, ex := range body.Exceptions {
		t, ok := byPos[ex.Target]
		if !ok {
			return nil, fmt.Errorf("%w: handler %d targets %d", ErrBadBranch, i, ex.Target)
		}
		a.Handlers = append(a.Handlers, Handler{From: ex.From, To: ex.To, Target: t, Info: ex, Index: i})
	}

	type entry struct{ at, stack, scope int }
	work := []entry{{0, 0, 0}}
	for _, h := range a.Handlers {
		work = append(work, entry{h.Target, 1, 0})
	}
	for len(work) > 0 {
		e := work[len(work)-1]
		work = work[:len(work)-1]
		if a.Stack[e.at] >= 0 {
			if a.Stack[e.at] != e.stack || a.Scope[e.at] != e.scope {
				return nil, fmt.Errorf("%w: %s reached with stack %d/%d and scope %d/%d", ErrInconsistentDepth,
					instrs[e.at], a.Stack[e.at], e.stack, a.Scope[e.at], e.scope)
			}
			continue
		}
		a.Stack[e.at], a.Scope[e.at] = e.stack, e.scope
		a.MaxStack = max(a.MaxStack, e.stack)
		a.MaxScope = max(a.MaxScope, e.scope)

		in := instrs[e.at]
		if e.stack < in.Pops {
			return nil, fmt.Errorf("%w: %s needs %d operands, has %d", ErrStackUnderrun, in, in.Pops, e.stack)
		}
		stack := e.stack - in.Pops + in.Pushes
		scope := e.scope + in.ScopeDelta
		if scope < 0 {
			return nil, fmt.Errorf("%w: %s", ErrScopeUnderrun, in)
		}
		if in.Op == Op(abc.OpGetScopeObject) && in.A >= e.scope {
			return nil, fmt.Errorf("%w: %s index %d with %d frames", ErrScopeUnderrun, in, in.A, e.scope)
		}
		a.MaxStack = max(a.MaxStack, stack)
		a.MaxScope = max(a.MaxScope, scope)

		for _, t := range in.Targets {
			work = append(work, entry{t, stack, scope})
		}
		if !in.Terminal {
			if e.at+1 >= n {
				return nil, fmt.Errorf("%w: %s falls off the end of the body", ErrBadBranch, in)
			}
			work = append(work, entry{e.at + 1, stack, scope})
		}
	}
	return a, nil
}
