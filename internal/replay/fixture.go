package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/tools"
)

// DecisionError in a fixture's decisions makes that decision-maker call fail.
const DecisionError = "!error"

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description   string                      `json:"description"`
	Config        FixtureConfig               `json:"config"`
	Question      string                      `json:"question"`
	History       []FixtureExchange           `json:"history"`
	Decisions     []string                    `json:"decisions"`
	VectorResults map[string][]FixturePassage `json:"vector_results"`
	TextResults   map[string][]FixturePassage `json:"text_results"`
	Rerank        string                      `json:"rerank"` // identity (default) | reverse
	JudgeScores   []eval.Feedback             `json:"judge_scores"`
	Expected      FixtureExpected             `json:"expected"`
}

// FixtureConfig overrides budgets; zero fields keep the defaults.
type FixtureConfig struct {
	MaxTurns        int              `json:"max_turns"`
	MaxErrorRetries int              `json:"max_error_retries"`
	RetrievalK      int              `json:"retrieval_k"`
	FinalK          int              `json:"final_k"`
	SnippetLength   int              `json:"snippet_length"`
	Thresholds      *eval.Thresholds `json:"thresholds"`
}

type FixtureExchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FixturePassage is one canned search hit.
type FixturePassage struct {
	Content  string   `json:"content"`
	Source   string   `json:"source"`
	Keywords []string `json:"keywords"`
}

// FixtureExpected is compared against the replayed run. Empty fields are not checked.
type FixtureExpected struct {
	Status       string   `json:"status"`
	Answer       string   `json:"answer"`
	Turns        int      `json:"turns"`
	ErrorRetries *int     `json:"error_retries"`
	Outcomes     []string `json:"outcomes"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.Question == "" {
		return nil, fmt.Errorf("parse fixture %s: question is required", path)
	}
	return &f, nil
}

// ToControllerConfig converts the fixture budgets. Replays run a single
// attempt with short timeouts.
func (fc *FixtureConfig) ToControllerConfig() controller.Config {
	cfg := controller.DefaultConfig()
	if fc.MaxTurns > 0 {
		cfg.MaxTurns = fc.MaxTurns
	}
	if fc.MaxErrorRetries > 0 {
		cfg.MaxErrorRetries = fc.MaxErrorRetries
	}
	cfg.CallTimeout = 5 * time.Second
	cfg.Retry = controller.RetryConfig{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	return cfg
}

// ToLimits converts the fixture retrieval limits.
func (fc *FixtureConfig) ToLimits() tools.Limits {
	lim := tools.DefaultLimits()
	if fc.RetrievalK > 0 {
		lim.RetrievalK = fc.RetrievalK
	}
	if fc.FinalK > 0 {
		lim.FinalK = fc.FinalK
	}
	if fc.SnippetLength > 0 {
		lim.SnippetLength = fc.SnippetLength
	}
	return lim
}

// ToThresholds returns the fixture thresholds or the defaults.
func (fc *FixtureConfig) ToThresholds() eval.Thresholds {
	if fc.Thresholds != nil {
		return *fc.Thresholds
	}
	return eval.DefaultThresholds()
}

// ToHistory converts the fixture conversation history.
func (f *Fixture) ToHistory() []controller.Exchange {
	out := make([]controller.Exchange, len(f.History))
	for i, ex := range f.History {
		out[i] = controller.Exchange{Question: ex.Question, Answer: ex.Answer}
	}
	return out
}

func toResults(ps []FixturePassage) []retrieval.Result {
	out := make([]retrieval.Result, len(ps))
	for i, p := range ps {
		md := map[string]any{}
		if p.Source != "" {
			md["source"] = p.Source
		}
		out[i] = retrieval.Result{Content: p.Content, Metadata: md, Score: 1, Keywords: p.Keywords}
	}
	return out
}

// #endregion fixture-loader
