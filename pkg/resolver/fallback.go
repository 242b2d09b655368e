package resolver

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/schema"
)

// resolveFallback is the deterministic safety net: ordinal references,
// exact literal matches and light fuzzy matching against enumerable
// values. It runs only when the model path is unavailable or produced
// invalid JSON.
func (r *Resolver) resolveFallback(req Request, partial map[string]any) Outcome {
	args := make(map[string]any, len(partial))
	for k, v := range partial {
		args[k] = v
	}

	weakest := domain.MatchPattern
	for _, name := range req.Tool.Args.Names() {
		if _, ok := args[name]; ok {
			continue
		}
		field := req.Tool.Args[name]
		value, method := extractSlot(req, name, field)
		if value == nil {
			continue
		}
		args[name] = value
		if method == domain.MatchFuzzy {
			weakest = domain.MatchFuzzy
		}
	}

	args = req.Tool.Args.ApplyDefaults(args)
	if err := req.Tool.Args.Validate(args); err != nil {
		return Outcome{Clarification: r.clarificationFor(req, args)}
	}

	return Outcome{Resolution: &domain.Resolution{
		ToolID:     req.Tool.ID,
		Args:       args,
		Confidence: confidenceFor(weakest),
		MatchedBy:  weakest,
	}}
}

// extractSlot pulls one argument value out of the text deterministically.
func extractSlot(req Request, name string, field schema.Field) (any, domain.MatchMethod) {
	switch t := field.Type.(type) {
	case *schema.EnumType:
		if value, method := matchOption(req.UserText, t.Values()); value != "" {
			return value, method
		}
	case *schema.StringType:
		// Column-valued slots ground against the dataset's actual columns.
		if name == "column" && len(req.Columns) > 0 {
			if value, method := matchOption(req.UserText, req.Columns); value != "" {
				return value, method
			}
		}
	case *schema.IntType:
		if n, ok := firstNumber(req.UserText); ok {
			return int(n), domain.MatchPattern
		}
	case *schema.RangeType, *schema.FloatType:
		if n, ok := firstNumber(req.UserText); ok {
			return n, domain.MatchPattern
		}
	}
	return nil, domain.MatchPattern
}

// ordinalWords maps ordinal references to zero-based indexes.
var ordinalWords = map[string]int{
	"first": 0, "1st": 0,
	"second": 1, "2nd": 1,
	"third": 2, "3rd": 2,
	"fourth": 3, "4th": 3,
	"fifth": 4, "5th": 4,
}

var bareNumberRe = regexp.MustCompile(`^(?:option|number|choice)?\s*#?(\d+)\.?$`)

// parseOrdinal interprets "the second one", "option 3" or a bare index
// against a list of n options. Returns -1 when the text is not ordinal.
func parseOrdinal(text string, n int) int {
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.TrimPrefix(lower, "the ")
	lower = strings.TrimSuffix(lower, " one")

	for word, idx := range ordinalWords {
		if strings.Contains(lower, word) {
			if idx < n {
				return idx
			}
			return -1
		}
	}
	if m := bareNumberRe.FindStringSubmatch(lower); m != nil {
		idx, err := strconv.Atoi(m[1])
		if err == nil && idx >= 1 && idx <= n {
			return idx - 1
		}
	}
	return -1
}

// matchOption resolves text against an enumerated option set: ordinal
// first, then exact literal, then light fuzzy matching.
func matchOption(text string, options []string) (string, domain.MatchMethod) {
	if len(options) == 0 {
		return "", domain.MatchPattern
	}

	if idx := parseOrdinal(text, len(options)); idx >= 0 {
		return options[idx], domain.MatchOrdinal
	}

	lower := strings.ToLower(text)
	for _, opt := range options {
		if containsToken(lower, strings.ToLower(opt)) {
			return opt, domain.MatchPattern
		}
	}

	// Fuzzy: any word of the text within edit distance 2 of an option.
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,!?\"'")
		for _, opt := range options {
			if len(word) >= 4 && editDistance(word, strings.ToLower(opt)) <= 2 {
				return opt, domain.MatchFuzzy
			}
		}
	}

	return "", domain.MatchPattern
}

// containsToken reports whether needle appears in haystack on word
// boundaries, so "mean" does not match inside "meantime".
func containsToken(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func firstNumber(text string) (float64, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// editDistance is the Levenshtein distance, used for the light fuzzy
// match. Small inputs only; no need for anything cleverer.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
