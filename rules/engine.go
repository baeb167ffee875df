package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// costLimit bounds the work a single policy expression may do
const costLimit = 1000000

// Engine compiles operating policies to CEL programs and evaluates them.
// Compiled programs are guarded by an RWMutex, so evaluation runs concurrently
// with policy edits.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	cache    RulesCache
	programs map[string]cel.Program // ruleID -> compiled program
	mu       sync.RWMutex

	// generation guards the cache against refills that raced a mutation
	generation uint64
	cacheMu    sync.Mutex
}

// NewEnv creates the CEL environment policies are written against
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarCandidate, cel.DynType),
		cel.Variable(VarDuty, cel.DynType),
		cel.Variable(VarDisruption, cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine creates an engine over store and compiles every active rule.
// A rule that does not compile fails construction.
func NewEngine(store RuleStore) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}
	return NewEngineWithEnv(env, store)
}

// NewEngineWithEnv creates an engine with a caller-supplied CEL environment
func NewEngineWithEnv(env *cel.Env, store RuleStore) (*Engine, error) {
	en := &Engine{
		env:      env,
		store:    store,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
		programs: make(map[string]cel.Program),
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// CompileRule compiles a rule expression and caches the program.
// The expression must type-check to a boolean.
func (en *Engine) CompileRule(ruleID, expression string) error {
	prog, err := en.compile(expression)
	if err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()

	return nil
}

func (en *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidExpression, ast.OutputType())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// Evaluate evaluates a single rule against the provided facts
func (en *Engine) Evaluate(ruleID string, facts map[string]any) (*EvaluationResult, error) {
	rule, err := en.store.Get(ruleID)
	if err != nil {
		return nil, err
	}

	en.mu.RLock()
	prog, exists := en.programs[ruleID]
	en.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("rule %s is not compiled", ruleID)
	}

	result := run(rule, prog, facts)
	return result, result.Error
}

// CompileAllRules compiles all active rules from the store and refreshes the cache
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}

	en.cacheMu.Lock()
	en.generation++
	en.cache.Set(rules)
	en.cacheMu.Unlock()

	return nil
}

// invalidate drops the cached rule list after a store mutation
func (en *Engine) invalidate() {
	en.cacheMu.Lock()
	en.generation++
	en.cache.Invalidate()
	en.cacheMu.Unlock()
}

// AddRule compiles a rule and, only if it compiles, stores it
func (en *Engine) AddRule(r *Rule) error {
	if _, err := en.store.Get(r.ID); err == nil {
		return fmt.Errorf("rule with ID %s: %w", r.ID, ErrRuleExists)
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	en.invalidate()

	return nil
}

// UpdateRule recompiles and stores a changed rule.
// The previous program stays in place if the new expression does not compile.
func (en *Engine) UpdateRule(r *Rule) error {
	prog, err := en.compile(r.Expression)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[r.ID] = prog
	en.mu.Unlock()

	en.invalidate()

	return nil
}

// DeleteRule removes a rule from the store and compiled programs
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.invalidate()

	return nil
}

// Rule returns a stored rule by ID
func (en *Engine) Rule(ruleID string) (*Rule, error) {
	return en.store.Get(ruleID)
}

// Rules returns every stored rule, active or not
func (en *Engine) Rules() ([]*Rule, error) {
	return en.store.List()
}

// ActiveRules returns the active rule list, from cache when possible
func (en *Engine) ActiveRules() ([]*Rule, error) {
	en.cacheMu.Lock()
	rules := en.cache.Get()
	gen := en.generation
	en.cacheMu.Unlock()
	if rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}

	en.cacheMu.Lock()
	if en.generation == gen {
		en.cache.Set(rules)
	}
	en.cacheMu.Unlock()
	return rules, nil
}

// EvaluateAll evaluates all active rules against the provided facts.
// A rule that fails to evaluate is reported with its error; the rest still run.
func (en *Engine) EvaluateAll(facts map[string]any) ([]*EvaluationResult, error) {
	rules, err := en.ActiveRules()
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		en.mu.RLock()
		prog, exists := en.programs[rule.ID]
		en.mu.RUnlock()

		if !exists {
			results = append(results, &EvaluationResult{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Reason:   rule.Reason,
				Error:    fmt.Errorf("rule %s is not compiled", rule.ID),
			})
			continue
		}

		results = append(results, run(rule, prog, facts))
	}

	return results, nil
}

// run evaluates one program; a non-boolean result is an error, not a miss
func run(rule *Rule, prog cel.Program, facts map[string]any) *EvaluationResult {
	result := &EvaluationResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Reason:   rule.Reason,
	}

	out, details, err := prog.Eval(facts)
	if err != nil {
		result.Error = fmt.Errorf("rule %s: %w", rule.ID, err)
		return result
	}

	matched, ok := out.Value().(bool)
	if !ok {
		result.Error = fmt.Errorf("rule %s: expression returned %T, want bool", rule.ID, out.Value())
		return result
	}

	result.Matched = matched
	if details != nil {
		result.Trace = details.State()
	}
	return result
}
