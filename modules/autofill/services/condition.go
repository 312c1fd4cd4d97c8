package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/jacksonlee411/contact-autofill/pkg/httperr"
)

const errConditionInvalid = "CONDITION_EXPR_INVALID"

var newConditionCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("key", cel.StringType),
		cel.Variable("current", cel.DynType),
		cel.Variable("incoming", cel.DynType),
	)
}

// ConditionEvaluator runs a field config's optional write guard, a boolean CEL
// expression over key, current (the record's value) and incoming (the
// extracted value). Compiled programs are cached by expression text.
type ConditionEvaluator struct {
	once    sync.Once
	env     *cel.Env
	envErr  error
	program sync.Map
}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

func (e *ConditionEvaluator) environment() (*cel.Env, error) {
	e.once.Do(func() {
		e.env, e.envErr = newConditionCELEnv()
	})
	return e.env, e.envErr
}

// Validate compiles expr and checks it yields a bool. Empty is valid.
func (e *ConditionEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := e.compile(expr)
	return err
}

func (e *ConditionEvaluator) compile(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if cached, ok := e.program.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := e.environment()
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, httperr.NewValidation(errConditionInvalid, iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, httperr.NewValidation(errConditionInvalid, "condition_expr must evaluate to bool")
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, httperr.NewValidation(errConditionInvalid, err.Error())
	}
	e.program.Store(expr, prg)
	return prg, nil
}

// Allows reports whether the guard passes. An empty expression always passes.
func (e *ConditionEvaluator) Allows(expr string, key string, current any, incoming any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	prg, err := e.compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"key":      key,
		"current":  celValue(current),
		"incoming": celValue(incoming),
	})
	if err != nil {
		return false, err
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("condition_expr did not yield bool")
	}
	return allowed, nil
}

// celValue folds json.Number and typed slices into shapes the CEL adapter knows.
func celValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []string:
		out := make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, celValue(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = celValue(item)
		}
		return out
	default:
		return v
	}
}
