package stream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/pulse/internal/realtime"
)

// ErrFilterTooLong is returned for expressions over the configured limit.
var ErrFilterTooLong = errors.New("filter too long")

// Filter is a compiled CEL predicate over topic, entityId and organizationId.
// The zero Filter matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

var filterEnv, filterEnvErr = cel.NewEnv(
	cel.Variable("topic", cel.StringType),
	cel.Variable("entityId", cel.StringType),
	cel.Variable("organizationId", cel.StringType),
)

// NewFilter compiles expr. An empty expression yields a match-all filter.
func NewFilter(expr string, maxBytes int) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	if maxBytes > 0 && len(expr) > maxBytes {
		return Filter{}, ErrFilterTooLong
	}
	if filterEnvErr != nil {
		return Filter{}, filterEnvErr
	}
	ast, iss := filterEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, fmt.Errorf("filter must evaluate to bool, got %s", ast.OutputType())
	}
	prog, err := filterEnv.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter. Evaluation errors count as no match.
func (f Filter) Match(e realtime.Event) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"topic":          e.Topic.String(),
		"entityId":       e.EntityID,
		"organizationId": e.OrganizationID,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
