package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// #region patterns
var (
	// a marker glued to the end of a previous sentence: "...context.Thought:"
	runTogetherRe = regexp.MustCompile(`(?i)([.!?])[ \t]*(thought|action[ \t]+input|action|observation|final[ \t]+answer)[ \t]*:`)

	// markers only count at the start of a line, so answers may mention them
	markerRe = regexp.MustCompile(`(?im)^[ \t>*#-]*(thought|action[ \t]+input|action|observation|final[ \t]+answer)[ \t]*:`)

	// "Action: vector_search Action Input: {...}" on one line
	inlineInputRe = regexp.MustCompile(`(?i)\baction[ \t]+input[ \t]*:`)

	wordSplitRe = regexp.MustCompile(`[ \t_\-]+`)

	// last-resort key extraction for truncated JSON objects
	looseKeyRe = regexp.MustCompile(`"(query|question|q|answer|final_answer|mode|search_mode|input)"\s*:\s*"((?:[^"\\]|\\.)*)`)
)

// #endregion patterns

// #region normalize
// Normalize repairs run-together output by inserting a newline before any
// marker keyword that directly follows sentence-ending punctuation.
// Markers quoted inside a JSON string are left alone.
func Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	quoted := quotedSpans(s)

	var b strings.Builder
	last := 0
	for _, loc := range runTogetherRe.FindAllStringSubmatchIndex(s, -1) {
		if within(quoted, loc[4]) {
			continue
		}
		b.WriteString(s[last:loc[3]])
		b.WriteByte('\n')
		last = loc[4]
	}
	b.WriteString(s[last:])
	return b.String()
}

// quotedSpans returns the [start, end) ranges of string literals that sit
// inside a {...} object. An unterminated literal runs to the end of s.
func quotedSpans(s string) [][2]int {
	var (
		spans         [][2]int
		depth, start  int
		inStr, escape bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inStr = false
				spans = append(spans, [2]int{start, i + 1})
			}
			continue
		}
		switch {
		case c == '{':
			depth++
		case c == '}' && depth > 0:
			depth--
		case c == '"' && depth > 0:
			inStr, start = true, i
		}
	}
	if inStr {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}

func within(spans [][2]int, at int) bool {
	for _, sp := range spans {
		if at >= sp[0] && at < sp[1] {
			return true
		}
	}
	return false
}

// #endregion normalize

// #region segments
type segment struct {
	marker string // lowercase, single-spaced
	value  string
}

// scan splits text at line-leading marker keywords. Text before the first
// marker is returned as lead. An Action line that carries its own
// "Action Input:" is split in two.
func scan(text string) (lead string, segs []segment) {
	quoted := quotedSpans(text)
	var locs [][]int
	for _, loc := range markerRe.FindAllStringSubmatchIndex(text, -1) {
		if !within(quoted, loc[2]) {
			locs = append(locs, loc)
		}
	}
	if len(locs) == 0 {
		return strings.TrimSpace(text), nil
	}
	lead = strings.TrimSpace(text[:locs[0][0]])
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		name := strings.ToLower(text[loc[2]:loc[3]])
		name = strings.Join(strings.Fields(name), " ")
		value := text[loc[1]:end]

		if name == "action" {
			if in := inlineInputRe.FindStringIndex(value); in != nil && !within(quoted, loc[1]+in[0]) {
				segs = append(segs,
					segment{marker: "action", value: strings.TrimSpace(value[:in[0]])},
					segment{marker: "action input", value: strings.TrimSpace(value[in[1]:])},
				)
				continue
			}
		}
		segs = append(segs, segment{marker: name, value: strings.TrimSpace(value)})
	}
	return lead, segs
}

// #endregion segments

// #region parse
// Parse turns raw decision-maker text into an Action. It never panics and
// never returns a nil-kind action: unparseable input yields KindError with a
// *ParseError in Err.
func Parse(raw string) Action {
	text := Normalize(raw)
	lead, segs := scan(text)

	var (
		thought, name, input, final string
		haveThought, haveAction     bool
		haveInput, haveFinal        bool
	)

loop:
	for _, sg := range segs {
		switch sg.marker {
		case "thought":
			if !haveThought {
				thought, haveThought = sg.value, true
			}
		case "action":
			if !haveAction {
				name, haveAction = sg.value, true
			}
		case "action input":
			if !haveInput {
				input, haveInput = sg.value, true
			}
		case "final answer":
			if !haveFinal && sg.value != "" {
				final, haveFinal = sg.value, true
			}
		case "observation":
			// anything after a self-written observation belongs to a turn
			// that has not happened yet
			if haveAction {
				break loop
			}
		}
	}
	if !haveThought {
		thought = lead
	}

	act := Action{Raw: raw, Thought: thought}

	if haveAction {
		kind, display := matchName(name)
		if !kind.Known() && haveFinal {
			return implicitFinal(act, final)
		}
		if !haveInput {
			input = embeddedObject(name)
		}
		// "Action: final_answer" followed by a Final Answer line
		if strings.TrimSpace(input) == "" && kind.TakesAnswer() && haveFinal {
			input = final
		}
		act.Kind = kind
		if !kind.Known() {
			act.Kind = Kind(display)
		}
		return PopulateFields(act, input)
	}

	if haveFinal {
		return implicitFinal(act, final)
	}

	// no action marker: look for a bare tool name anywhere in the text
	if kind, at := findKnownName(text); kind != "" {
		act.Kind = kind
		if !haveInput {
			input = embeddedObject(text[at:])
		}
		return PopulateFields(act, input)
	}

	act.Kind = KindError
	act.Err = &ParseError{Err: ErrNoAction}
	return act
}

func implicitFinal(act Action, final string) Action {
	act.Kind = KindFinalAnswer
	act.Implicit = true
	act.Answer = final
	act.Input = final
	return act
}

// #endregion parse

// #region names
// matchName maps a free-form action name ("Vector Search", "`rerank`",
// "judge_answer(...)") to a Kind. display is the best-effort name used when
// nothing matches.
func matchName(value string) (Kind, string) {
	line := value
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.ToLower(strings.TrimSpace(line))
	line = strings.TrimLeft(line, "`*\"'[(<{ ")
	if i := strings.IndexAny(line, "({:`*\"'])>"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	words := wordSplitRe.Split(line, -1)

	for n := min(len(words), 3); n > 0; n-- {
		candidate := Kind(strings.Join(words[:n], "_"))
		if candidate.Known() {
			return candidate, string(candidate)
		}
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	return "", fields[0]
}

// findKnownName returns the earliest known action name in text.
func findKnownName(text string) (Kind, int) {
	lower := strings.ToLower(text)
	best, at := Kind(""), -1
	for _, k := range Kinds() {
		if i := strings.Index(lower, string(k)); i >= 0 && (at < 0 || i < at) {
			best, at = k, i
		}
	}
	return best, at
}

// embeddedObject returns the first {...} span in s, if any.
func embeddedObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// #endregion names

// #region populate
// PopulateFields interprets the action input for act.Kind. JSON objects
// contribute query/question/q, answer/final_answer and mode/search_mode keys,
// with a generic "input" key as fallback. Any other text is taken whole as the
// query (search actions) or answer (judge/final). Unknown kinds become
// KindError.
func PopulateFields(act Action, rawInput string) Action {
	in := cleanInput(rawInput)
	act.Input = in

	if !act.Kind.Known() {
		act.Err = &ParseError{Name: string(act.Kind), Err: ErrUnknownAction}
		act.Kind = KindError
		return act
	}

	if obj, ok := decodeObject(in); ok {
		act.Query = firstString(obj, "query", "question", "q")
		act.Answer = firstString(obj, "answer", "final_answer")
		act.Mode = firstString(obj, "mode", "search_mode")
		if generic := firstString(obj, "input"); generic != "" {
			switch {
			case act.Kind.IsSearch() && act.Query == "":
				act.Query = generic
			case act.Kind.TakesAnswer() && act.Answer == "":
				act.Answer = generic
			}
		}
		return act
	}

	text := in
	var str string
	if err := json.Unmarshal([]byte(in), &str); err == nil {
		text = str
	} else {
		text = strings.Trim(text, "\"'`")
	}
	text = strings.TrimSpace(text)

	switch {
	case act.Kind.IsSearch():
		act.Query = text
	case act.Kind.TakesAnswer():
		act.Answer = text
	}
	return act
}

func cleanInput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{\"") {
			s = s[i+1:] // language tag
		}
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// decodeObject parses a JSON object, falling back to loose key extraction for
// objects the model forgot to close.
func decodeObject(in string) (map[string]any, bool) {
	if !strings.HasPrefix(in, "{") {
		return nil, false
	}
	// the first complete object wins; prose after it is ignored
	var obj map[string]any
	if err := json.NewDecoder(strings.NewReader(in)).Decode(&obj); err == nil && obj != nil {
		return obj, true
	}
	matches := looseKeyRe.FindAllStringSubmatch(in, -1)
	if len(matches) == 0 {
		return nil, false
	}
	obj = make(map[string]any, len(matches))
	for _, m := range matches {
		var v string
		if err := json.Unmarshal([]byte(`"`+m[2]+`"`), &v); err != nil {
			v = m[2]
		}
		if _, exists := obj[m[1]]; !exists {
			obj[m[1]] = v
		}
	}
	return obj, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s
			}
		case float64, bool:
			return fmt.Sprint(x)
		}
	}
	return ""
}

// #endregion populate
