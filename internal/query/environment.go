// Package query compiles CEL filter expressions over file blocks, such as
// `code == "OB" && count > 1` or `type == "Mesh" && "**mat" in fields`.
package query

import (
	"fmt"
	"strconv"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Variable names visible to filter expressions.
const (
	VarCode    = "code"
	VarAddress = "address"
	VarSize    = "size"
	VarCount   = "count"
	VarSDNA    = "sdna"
	VarType    = "type"
	VarIndex   = "index"
	VarFields  = "fields"
)

// NewEnvironment creates the CEL environment filter expressions compile in.
func NewEnvironment() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarCode, cel.StringType),
		cel.Variable(VarAddress, cel.IntType),
		cel.Variable(VarSize, cel.IntType),
		cel.Variable(VarCount, cel.IntType),
		cel.Variable(VarSDNA, cel.IntType),
		cel.Variable(VarType, cel.StringType),
		cel.Variable(VarIndex, cel.IntType),
		cel.Variable(VarFields, cel.ListType(cel.StringType)),
		cel.StdLib(),
		BlockFunctions(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// BlockFunctions returns the helper functions available to filters.
func BlockFunctions() cel.EnvOption {
	return cel.Lib(&blockLib{})
}

type blockLib struct{}

func (*blockLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("hex",
			cel.Overload("hex_int", []*cel.Type{cel.IntType}, cel.StringType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					i, ok := val.(types.Int)
					if !ok {
						return types.NewErr("expected int for hex")
					}
					return types.String("0x" + strconv.FormatUint(uint64(i), 16))
				}),
			),
		),
		cel.Function("bitAnd",
			cel.Overload("bitand_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					a, ok1 := lhs.(types.Int)
					b, ok2 := rhs.(types.Int)
					if !ok1 || !ok2 {
						return types.NewErr("expected int arguments for bitAnd")
					}
					return a & b
				}),
			),
		),
	}
}

func (*blockLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}
