package llm

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
)

// #region decision-prompt
const decisionSystemPrompt = `You answer questions from a knowledge base by calling tools, one per turn.

Tools:
- vector_search: semantic search over the knowledge base. Input: {"query": "<natural language query>"}
- text_search: keyword search. Use ONE word per query (a name, code or rare term). Input: {"query": "<one word>", "mode": "auto"}
- rerank: reorder the retrieved context by relevance and keep the best passages. Input: {}
- judge_answer: have your draft answer scored for accuracy, relevance and completeness (1-5). Input: {"answer": "<complete draft answer>"}
- final_answer: submit the answer. Input: {"answer": "<the judged answer>"}

Workflow:
1. Search until the context covers the question. Prefer several focused searches over one broad one.
2. Call rerank once the context is gathered.
3. Draft a complete answer from the context only, citing passage ids like [3], and call judge_answer.
4. If any score is below %s (accuracy/relevance/completeness), improve the answer, searching again if needed, and judge again.
5. Call final_answer only after judge_answer reported that all thresholds are met.

Reply with exactly one step in this format and nothing else:
Thought: <your reasoning>
Action: <tool name>
Action Input: <JSON object>

Never write an Observation line; the system provides it.`

// DecisionSystemPrompt renders the tool catalogue and workflow rules for the
// given thresholds label, e.g. "4/4/4".
func DecisionSystemPrompt(thresholds string) string {
	return fmt.Sprintf(decisionSystemPrompt, thresholds)
}

// RenderTurn renders the per-turn user message.
func RenderTurn(p controller.Proposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", p.Question)
	b.WriteString("Context:\n")
	b.WriteString(p.Context)
	b.WriteString("\n\n")
	if p.Transcript != "" {
		b.WriteString("Previous steps:\n")
		b.WriteString(p.Transcript)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s. Decide the next step.", p.TurnMarker)
	if p.MaxTurns > 0 && p.Turn >= p.MaxTurns-1 {
		b.WriteString(" You are almost out of turns: judge and submit your best answer now.")
	}
	return b.String()
}

// #endregion decision-prompt

// #region judge-prompt
const judgePrompt = `You are grading a draft answer against reference passages.

Question:
%s

Reference passages:
%s

Draft answer:
%s

Score the draft from 1 (poor) to 5 (excellent) on:
- accuracy: every claim is supported by the reference passages
- relevance: the answer addresses the question asked
- completeness: the answer covers everything in the passages that the question needs

Reply with JSON only: {"accuracy": <1-5>, "relevance": <1-5>, "completeness": <1-5>, "feedback": "<what to improve>"}`

// #endregion judge-prompt

// #region rerank-prompt
const rerankPrompt = `Order the passages by how useful they are for answering the question, most useful first.

Question:
%s

Passages:
%s

Reply with a JSON array of passage numbers only, for example [3, 1, 2].`

// #endregion rerank-prompt
