package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Labeler renders node link labels. Each resource kind has a built-in label;
// configured expressions replace it.
type Labeler struct {
	programs map[ResourceKind]*vm.Program
	logger   zerolog.Logger
}

// NewLabeler compiles the label expressions keyed by resource kind name.
func NewLabeler(expressions map[string]string, logger zerolog.Logger) (*Labeler, error) {
	l := &Labeler{programs: make(map[ResourceKind]*vm.Program), logger: logger}
	for name, source := range expressions {
		kind, err := ParseResourceKind(name)
		if err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		program, err := expr.Compile(source, expr.Env(map[string]interface{}{"hex": hexString}), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("labels %s: compile: %w", name, err)
		}
		l.programs[kind] = program
	}
	return l, nil
}

// Label evaluates the expression configured for kind against fields and
// falls back to builtin when there is none or it fails.
func (l *Labeler) Label(kind ResourceKind, fields map[string]any, builtin string) string {
	if l == nil {
		return builtin
	}
	program, ok := l.programs[kind]
	if !ok {
		return builtin
	}
	env := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		env[k] = v
	}
	env["hex"] = hexString
	out, err := expr.Run(program, env)
	if err != nil {
		l.logger.Debug().Err(err).Str("kind", kind.String()).Msg("label expression failed")
		return builtin
	}
	if out == nil {
		return builtin
	}
	if s, ok := out.(string); ok {
		return s
	}
	return formatValue(out)
}

func hexString(v any) string {
	switch n := v.(type) {
	case int:
		return "0x" + strconv.FormatInt(int64(n), 16)
	case int64:
		return "0x" + strconv.FormatInt(n, 16)
	case float64:
		return "0x" + strconv.FormatInt(int64(n), 16)
	default:
		return fmt.Sprint(v)
	}
}

// formatValue renders numbers the way the server sent them: integers without
// a fraction and floats without exponent.
func formatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return decimal.NewFromFloat(n).String()
	case float32:
		return decimal.NewFromFloat32(n).String()
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint32:
		return strconv.FormatUint(uint64(n), 10)
	case bool:
		return strconv.FormatBool(n)
	case decimal.Decimal:
		return n.String()
	default:
		return fmt.Sprint(v)
	}
}

// formatScaled divides v by div and truncates the result, as used for the
// kilobyte figures of the memory statistics.
func formatScaled(v float64, div int64) string {
	return decimal.NewFromFloat(v).Div(decimal.NewFromInt(div)).Floor().String()
}
