package repl

import (
	"sync"

	"github.com/dop251/goja"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// computeEnv is the environment visible to compute() expressions.
type computeEnv struct {
	Target string `expr:"target"`
}

// computeCache memoizes compiled compute() expressions by source.
type computeCache struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func (c *computeCache) compile(src string) (*vm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[src]; ok {
		return p, nil
	}
	p, err := expr.Compile(src, expr.Env(computeEnv{}))
	if err != nil {
		return nil, err
	}
	if c.programs == nil {
		c.programs = make(map[string]*vm.Program)
	}
	c.programs[src] = p
	return p, nil
}

// computeFunc implements compute(expression), which evaluates an expr-lang
// expression such as "1 + 1" or "len(target) > 0" and returns its value.
func (r *session) computeFunc(runtime *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(runtime.NewTypeError("compute requires 1 argument: expression"))
		}
		program, err := r.compute.compile(call.Arguments[0].String())
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		out, err := expr.Run(program, computeEnv{Target: r.cfg.Target})
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		return runtime.ToValue(out)
	}
}
