package hcl

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// HexFunc parses a hexadecimal string, with or without a 0x prefix.
var HexFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		raw := args[0].AsString()
		s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
		v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 16, 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid hex value %q", raw)
		}
		return cty.NumberUIntVal(v), nil
	},
})

// envVariables exposes the process environment as an object.
func envVariables() cty.Value {
	env := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	if len(env) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(env)
}

func newEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envVariables(),
		},
		Functions: map[string]function.Function{
			"hex": HexFunc,
		},
	}
}
