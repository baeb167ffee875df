package rules

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	celast "github.com/google/cel-go/common/ast"

	"github.com/liamcoop/crewrecovery/rules/generated"
)

// ErrInvalidPolicy is returned when a policy definition is malformed
var ErrInvalidPolicy = errors.New("invalid policy")

const (
	maxIDLength         = 100
	maxNameLength       = 200
	maxReasonLength     = 1000
	maxExpressionLength = 4096
)

var policyID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// factFields lists the fields each policy variable exposes, taken from the activation itself
var factFields = func() map[string][]string {
	act := generated.Facts{Duty: &generated.Duty{}}.Activation()
	fields := make(map[string][]string, len(act))
	for name, v := range act {
		if m, ok := v.(map[string]any); ok {
			fields[name] = slices.Sorted(maps.Keys(m))
		}
	}
	return fields
}()

// ValidatePolicy checks a policy before it reaches the engine.
// Field references such as candidate.tail_number would only fail at
// evaluation time, turning every candidate indeterminate, so they are
// rejected here.
func ValidatePolicy(r *Rule) error {
	if err := validateID(r.ID); err != nil {
		return fmt.Errorf("%w: id %q: %v", ErrInvalidPolicy, r.ID, err)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidPolicy)
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name length %d exceeds maximum of %d", ErrInvalidPolicy, len(r.Name), maxNameLength)
	}
	if len(r.Reason) > maxReasonLength {
		return fmt.Errorf("%w: reason length %d exceeds maximum of %d", ErrInvalidPolicy, len(r.Reason), maxReasonLength)
	}
	if len(r.Expression) > maxExpressionLength {
		return fmt.Errorf("%w: expression length %d exceeds maximum of %d",
			ErrInvalidExpression, len(r.Expression), maxExpressionLength)
	}
	return validateReferences(r.Expression)
}

func validateID(id string) error {
	if id == "" {
		return errors.New("cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("length %d exceeds maximum of %d", len(id), maxIDLength)
	}
	if !policyID.MatchString(id) {
		return errors.New("must start with a letter or digit and contain only letters, digits, '_', '.' or '-'")
	}
	return nil
}

// validateReferences parses expression and checks every variable.field selection
func validateReferences(expression string) error {
	env, err := NewEnv()
	if err != nil {
		return err
	}
	parsed, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}

	var unknown []string
	celast.PreOrderVisit(parsed.NativeRep().Expr(), celast.NewExprVisitor(func(e celast.Expr) {
		if e.Kind() != celast.SelectKind {
			return
		}
		sel := e.AsSelect()
		if sel.Operand().Kind() != celast.IdentKind {
			return
		}
		variable := sel.Operand().AsIdent()
		fields, ok := factFields[variable]
		if !ok {
			return
		}
		if !slices.Contains(fields, sel.FieldName()) {
			unknown = append(unknown, variable+"."+sel.FieldName())
		}
	}))

	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("%w: unknown field %s", ErrInvalidExpression, strings.Join(slices.Compact(unknown), ", "))
	}
	return nil
}

// Fields returns the fields a policy may reference under variable, sorted
func Fields(variable string) []string {
	return slices.Clone(factFields[variable])
}
