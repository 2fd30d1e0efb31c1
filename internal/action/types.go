package action

import (
	"errors"
	"fmt"
)

// #region kind
// Kind is the tool a decision-maker asked for.
type Kind string

const (
	KindVectorSearch Kind = "vector_search"
	KindTextSearch   Kind = "text_search"
	KindRerank       Kind = "rerank"
	KindJudgeAnswer  Kind = "judge_answer"
	KindFinalAnswer  Kind = "final_answer"
	KindError        Kind = "error"
)

// Kinds lists the dispatchable actions in prompt order.
func Kinds() []Kind {
	return []Kind{KindVectorSearch, KindTextSearch, KindRerank, KindJudgeAnswer, KindFinalAnswer}
}

// Known reports whether k is one of the five dispatchable actions.
func (k Kind) Known() bool {
	switch k {
	case KindVectorSearch, KindTextSearch, KindRerank, KindJudgeAnswer, KindFinalAnswer:
		return true
	}
	return false
}

// IsSearch reports whether a bare input string is a query for k.
func (k Kind) IsSearch() bool {
	return k == KindVectorSearch || k == KindTextSearch
}

// TakesAnswer reports whether a bare input string is an answer for k.
func (k Kind) TakesAnswer() bool {
	return k == KindJudgeAnswer || k == KindFinalAnswer
}

// #endregion kind

// #region action
// Action is the parsed decision. Kind is KindError exactly when Err is set.
type Action struct {
	Kind     Kind
	Query    string
	Answer   string
	Mode     string
	Thought  string
	Input    string // action input as written, fences stripped
	Raw      string // unparsed decision-maker text
	Implicit bool   // bare "Final Answer:" block with no Action line
	Err      error
}

// IsError reports whether parsing failed.
func (a Action) IsError() bool {
	return a.Kind == KindError
}

// #endregion action

// #region errors
var (
	// ErrNoAction means no action marker, known action name or final answer was found.
	ErrNoAction = errors.New("no action found")
	// ErrUnknownAction means an action name was found but is not dispatchable.
	ErrUnknownAction = errors.New("unknown action")
)

// ParseError describes why decision-maker output could not be parsed.
type ParseError struct {
	Name string // offending action name, if any
	Err  error
}

func (e *ParseError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("parse action: %v %q", e.Err, e.Name)
	}
	return fmt.Sprintf("parse action: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// #endregion errors
