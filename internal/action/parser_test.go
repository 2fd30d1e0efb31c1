package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWellFormed(t *testing.T) {
	raw := "Thought: I need more data.\nAction: vector_search\nAction Input: {\"query\": \"clinical trial safety\"}"
	act := Parse(raw)

	require.False(t, act.IsError(), "unexpected error: %v", act.Err)
	assert.Equal(t, KindVectorSearch, act.Kind)
	assert.Equal(t, "clinical trial safety", act.Query)
	assert.Equal(t, "I need more data.", act.Thought)
	assert.Equal(t, raw, act.Raw)
	assert.False(t, act.Implicit)
}

func TestParseRunTogetherMatchesWellFormed(t *testing.T) {
	runTogether := "The question is about context. Thought: I need more data.Action: vector_search Action Input: {\"query\": \"clinical trial safety\"}"
	wellFormed := "Thought: I need more data.\nAction: vector_search\nAction Input: {\"query\": \"clinical trial safety\"}"

	a := Parse(runTogether)
	b := Parse(wellFormed)

	require.False(t, a.IsError(), "unexpected error: %v", a.Err)
	assert.Equal(t, b.Kind, a.Kind)
	assert.Equal(t, b.Query, a.Query)
	assert.Equal(t, b.Thought, a.Thought)
}

func TestNormalizeInsertsNewlines(t *testing.T) {
	got := Normalize("done.Action: rerank")
	assert.Equal(t, "done.\nAction: rerank", got)

	// already separated text is untouched
	assert.Equal(t, "done.\nAction: rerank", Normalize("done.\nAction: rerank"))
}

func TestParseImplicitFinalAnswer(t *testing.T) {
	act := Parse("Thought: I know it now.\nFinal Answer: Product X is safe.")

	require.False(t, act.IsError())
	assert.Equal(t, KindFinalAnswer, act.Kind)
	assert.True(t, act.Implicit)
	assert.Equal(t, "Product X is safe.", act.Answer)
}

func TestParseExplicitFinalAnswer(t *testing.T) {
	act := Parse("Thought: done\nAction: final_answer\nAction Input: {\"answer\": \"42\"}")

	assert.Equal(t, KindFinalAnswer, act.Kind)
	assert.False(t, act.Implicit)
	assert.Equal(t, "42", act.Answer)
}

func TestParseTextSearchWithMode(t *testing.T) {
	act := Parse("Action: text_search\nAction Input: {\"query\": \"nausea\", \"mode\": \"OR\"}")

	assert.Equal(t, KindTextSearch, act.Kind)
	assert.Equal(t, "nausea", act.Query)
	assert.Equal(t, "OR", act.Mode)
}

func TestParseBareStringInput(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		kind  Kind
		query string
		ans   string
	}{
		{"quoted query", "Action: vector_search\nAction Input: \"side effects\"", KindVectorSearch, "side effects", ""},
		{"unquoted query", "Action: text_search\nAction Input: hepatotoxicity", KindTextSearch, "hepatotoxicity", ""},
		{"judge plain", "Action: judge_answer\nAction Input: Product X is safe.", KindJudgeAnswer, "", "Product X is safe."},
		{"generic input key", "Action: judge_answer\nAction Input: {\"input\": \"draft\"}", KindJudgeAnswer, "", "draft"},
		{"question key", "Action: vector_search\nAction Input: {\"question\": \"dosage\"}", KindVectorSearch, "dosage", ""},
		{"fenced json", "Action: vector_search\nAction Input: ```json\n{\"query\": \"fenced\"}\n```", KindVectorSearch, "fenced", ""},
		{"truncated json", "Action: vector_search\nAction Input: {\"query\": \"half open", KindVectorSearch, "half open", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := Parse(tt.raw)
			require.False(t, act.IsError(), "unexpected error: %v", act.Err)
			assert.Equal(t, tt.kind, act.Kind)
			assert.Equal(t, tt.query, act.Query)
			assert.Equal(t, tt.ans, act.Answer)
		})
	}
}

func TestParseNameVariants(t *testing.T) {
	for raw, want := range map[string]Kind{
		"Action: Vector Search\nAction Input: x":    KindVectorSearch,
		"Action: `rerank`":                          KindRerank,
		"Action: **judge_answer**\nAction Input: a": KindJudgeAnswer,
		"Action: text-search\nAction Input: x":      KindTextSearch,
	} {
		assert.Equal(t, want, Parse(raw).Kind, raw)
	}
}

func TestParseInlineObjectWithoutInputMarker(t *testing.T) {
	act := Parse("Action: vector_search {\"query\": \"inline\"}")
	assert.Equal(t, KindVectorSearch, act.Kind)
	assert.Equal(t, "inline", act.Query)
}

func TestParseStopsAtObservation(t *testing.T) {
	raw := "Thought: search first\nAction: vector_search\nAction Input: {\"query\": \"a\"}\nObservation: made up\nThought: now finish\nAction: final_answer\nAction Input: fake"
	act := Parse(raw)

	assert.Equal(t, KindVectorSearch, act.Kind)
	assert.Equal(t, "a", act.Query)
}

func TestParseFallbackScan(t *testing.T) {
	act := Parse("I think I should call rerank now to focus the context.")
	assert.Equal(t, KindRerank, act.Kind)

	act = Parse("Let me run vector_search with {\"query\": \"x\"}")
	assert.Equal(t, KindVectorSearch, act.Kind)
	assert.Equal(t, "x", act.Query)
}

func TestParseUnknownAction(t *testing.T) {
	act := Parse("Thought: hmm\nAction: browse_web\nAction Input: x")

	require.True(t, act.IsError())
	assert.True(t, errors.Is(act.Err, ErrUnknownAction))

	var pe *ParseError
	require.ErrorAs(t, act.Err, &pe)
	assert.Equal(t, "browse_web", pe.Name)
}

func TestParseUnknownActionWithFinalAnswer(t *testing.T) {
	act := Parse("Action: none\nFinal Answer: fallback text")
	assert.Equal(t, KindFinalAnswer, act.Kind)
	assert.True(t, act.Implicit)
	assert.Equal(t, "fallback text", act.Answer)
}

func TestParseNothing(t *testing.T) {
	for _, raw := range []string{"", "   ", "I am not sure what to do.", "Final Answer:"} {
		act := Parse(raw)
		require.True(t, act.IsError(), "raw %q", raw)
		assert.ErrorIs(t, act.Err, ErrNoAction)
	}
}

func TestPopulateFieldsUnknownKind(t *testing.T) {
	act := PopulateFields(Action{Kind: "delete_all"}, "x")
	assert.Equal(t, KindError, act.Kind)
	assert.ErrorIs(t, act.Err, ErrUnknownAction)
}

func TestThoughtFallsBackToLeadText(t *testing.T) {
	act := Parse("Need the dosage table first.\nAction: text_search\nAction Input: dosage")
	assert.Equal(t, "Need the dosage table first.", act.Thought)
}

func TestParseAnswerMentioningMarkers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
		ans  string
	}{
		{
			"action in json answer",
			"Thought: ready\nAction: judge_answer\nAction Input: {\"answer\": \"Product X supports SSO. Recommended action: enable MFA for admins.\"}",
			KindJudgeAnswer,
			"Product X supports SSO. Recommended action: enable MFA for admins.",
		},
		{
			"observation after sentence end in json answer",
			"Action: final_answer\nAction Input: {\"answer\": \"SSO is supported. Observation: audits are weekly.\"}",
			KindFinalAnswer,
			"SSO is supported. Observation: audits are weekly.",
		},
		{
			"final answer in json answer",
			"Action: judge_answer\nAction Input: {\"answer\": \"The final answer: yes, Product X has MFA.\"}",
			KindJudgeAnswer,
			"The final answer: yes, Product X has MFA.",
		},
		{
			"raw newline inside json answer",
			"Action: final_answer\nAction Input: {\"answer\": \"Two features.\nObservation: both are on by default.\"}",
			KindFinalAnswer,
			"Two features.\nObservation: both are on by default.",
		},
		{
			"plain text answer",
			"Action: judge_answer\nAction Input: Key observation: MFA is enforced and the next action: rotate keys.",
			KindJudgeAnswer,
			"Key observation: MFA is enforced and the next action: rotate keys.",
		},
		{
			"trailing prose after object",
			"Action: final_answer\nAction Input: {\"answer\": \"MFA and SSO.\"}\nThat should do it.",
			KindFinalAnswer,
			"MFA and SSO.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := Parse(tt.raw)
			require.False(t, act.IsError(), "unexpected error: %v", act.Err)
			assert.Equal(t, tt.kind, act.Kind)
			assert.Equal(t, tt.ans, act.Answer)
		})
	}
}

func TestParseLineLeadingObservationStillEndsBlock(t *testing.T) {
	act := Parse("Action: judge_answer\nAction Input: MFA is enforced.\nObservation: scores 5/5/5\nAction: final_answer")
	assert.Equal(t, KindJudgeAnswer, act.Kind)
	assert.Equal(t, "MFA is enforced.", act.Answer)
}

func TestParseActionWithFinalAnswerLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
	}{
		{"final", "Thought: the judge passed it\nAction: final_answer\nFinal Answer: Product X has SSO and MFA.", KindFinalAnswer},
		{"judge", "Thought: check this draft\nAction: judge_answer\nFinal Answer: Product X has SSO and MFA.", KindJudgeAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := Parse(tt.raw)
			require.False(t, act.IsError(), "unexpected error: %v", act.Err)
			assert.Equal(t, tt.kind, act.Kind)
			assert.False(t, act.Implicit)
			assert.Equal(t, "Product X has SSO and MFA.", act.Answer)
		})
	}

	// an explicit input still wins over the Final Answer line
	act := Parse("Action: final_answer\nAction Input: {\"answer\": \"from input\"}\nFinal Answer: from block")
	assert.Equal(t, "from input", act.Answer)
}
