package core

import "context"

// ActionNone is the action name used on the no-response signal delivered to
// the caller's callback when a cycle produced no response content.
const ActionNone = "NONE"

// ResponseFunc receives the aggregated response content for a cycle. The
// dispatcher invokes it exactly once per handled message.
type ResponseFunc func(ctx context.Context, content Content) error

// ActionExample is a scripted exchange used for documentation and selection
// heuristics. It is never executed.
type ActionExample struct {
	Name    string  `json:"name"`
	Content Content `json:"content"`
}

// ActionResult is what one action execution produced.
type ActionResult struct {
	Action  string
	Success bool
	Text    string
	Values  map[string]any
	Data    map[string]any
	// Error carries the failure message when Success is false.
	Error string
	// Responses are records the action wants appended to the conversation.
	// The dispatcher persists them and folds their content into the reply.
	Responses []Memory
}

// ActionOutcome aggregates one cycle's dispatch: every candidate result,
// evaluator outcomes, and the response delivered to the callback.
type ActionOutcome struct {
	Results     []ActionResult
	Evaluations []EvaluatorResult
	Response    Content
	// Responded is true when some action produced response content.
	Responded bool
	// NoAction is true when no registered action validated for the message.
	NoAction bool
	// StateText is the composed state text the cycle ran against.
	StateText string
}

// Action is a pluggable unit of behavior performed in response to a message.
//
// Validate gates candidacy for a given message and state; an error counts as
// a failed validation and is logged, never fatal. Handler runs only for
// candidates and receives the results of actions that already ran in the
// same cycle. Providers names dynamic providers this action needs composed
// into the default state.
type Action struct {
	Name        string
	Similes     []string
	Description string
	Examples    [][]ActionExample
	Providers   []string
	Validate    func(ctx context.Context, tk Toolkit, msg Memory, st *State) (bool, error)
	Handler     func(ctx context.Context, tk Toolkit, msg Memory, st *State, prior []ActionResult) (ActionResult, error)
}

// ProviderResult is a provider's partial contribution to the State.
type ProviderResult struct {
	Text   string
	Values map[string]any
	Data   map[string]any
}

// Provider contributes contextual information to the State before action
// selection. Dynamic providers are composed only when explicitly requested
// or pulled in by an action's Providers list. Position orders providers
// ascending; ties keep registration order.
type Provider struct {
	Name        string
	Description string
	Dynamic     bool
	Position    int
	Validate    func(ctx context.Context, tk Toolkit, msg Memory) (bool, error)
	Get         func(ctx context.Context, tk Toolkit, msg Memory) (ProviderResult, error)
}

// EvaluatorResult is what one evaluator run produced.
type EvaluatorResult struct {
	Evaluator string
	Success   bool
	Text      string
	Data      map[string]any
	Error     string
}

// Evaluator inspects a completed cycle and derives or persists facts.
// Evaluators run after all actions finish and never feed the same cycle's
// State.
type Evaluator struct {
	Name        string
	Description string
	Validate    func(ctx context.Context, tk Toolkit, msg Memory, st *State) (bool, error)
	Evaluate    func(ctx context.Context, tk Toolkit, msg Memory, st *State, outcome *ActionOutcome) (EvaluatorResult, error)
}
