package query

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Vars are the attributes of one block as seen by a filter.
type Vars struct {
	Code    string
	Address uint64
	Size    uint64
	Count   uint32
	SDNA    uint32
	Type    string
	Index   int
	Fields  []string
}

func (v Vars) activation() map[string]any {
	fields := v.Fields
	if fields == nil {
		fields = []string{}
	}
	return map[string]any{
		VarCode:    v.Code,
		VarAddress: int64(v.Address),
		VarSize:    int64(v.Size),
		VarCount:   int64(v.Count),
		VarSDNA:    int64(v.SDNA),
		VarType:    v.Type,
		VarIndex:   int64(v.Index),
		VarFields:  fields,
	}
}

// Pool caches compiled filter programs by source text. It is safe for
// concurrent use.
type Pool struct {
	mu       sync.RWMutex
	programs map[string]cel.Program
	env      *cel.Env
}

// NewPool creates a pool with the block filter environment.
func NewPool() (*Pool, error) {
	env, err := NewEnvironment()
	if err != nil {
		return nil, err
	}
	return &Pool{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile returns the program for expr, compiling it on first use. The
// expression must evaluate to a bool.
func (p *Pool) Compile(expr string) (cel.Program, error) {
	p.mu.RLock()
	if prg, ok := p.programs[expr]; ok {
		p.mu.RUnlock()
		return prg, nil
	}
	p.mu.RUnlock()

	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q evaluates to %v, not bool", expr, ast.OutputType())
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %q: %w", expr, err)
	}

	p.mu.Lock()
	p.programs[expr] = prg
	p.mu.Unlock()
	return prg, nil
}

// Match evaluates a compiled filter against one block.
func (p *Pool) Match(prg cel.Program, v Vars) (bool, error) {
	out, _, err := prg.Eval(v.activation())
	if err != nil {
		return false, fmt.Errorf("filter evaluation error: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("filter returned %v, not bool", out.Type())
	}
	return bool(b), nil
}

// Len returns the number of cached programs.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.programs)
}
