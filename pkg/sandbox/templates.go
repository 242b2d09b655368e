package sandbox

import (
	"strconv"
	"strings"
)

// analysisTemplate summarizes the columns the request mentions, or every
// numeric column when it names none. {focus} is the only placeholder; an
// unresolved one is caught by the output sanitizer.
const analysisTemplate = `focus = [{focus}]
if focus:
    cols = [find_column(c) for c in focus]
    view = df[cols].copy()
    for c in cols:
        converted = to_number(view[c])
        if converted.notna().any():
            view[c] = converted
else:
    view = df.select_dtypes(include="number")
    if view.shape[1] == 0:
        view = df
summary = view.describe(include="all").round(4).fillna("")
emit_table("summary", summary)
`

// strictTemplate is the retry script after an InvalidOutput: a minimal
// fixed summary with nothing request-dependent in it.
const strictTemplate = `view = df.select_dtypes(include="number")
if view.shape[1] == 0:
    view = df.iloc[:, :1]
summary = view.describe().round(4).fillna(0)
emit_table("summary", summary.head(12))
`

// analysisScript parameterizes the fixed template with the dataset columns
// the request text mentions. The request never becomes code.
func analysisScript(request string, columns []string) string {
	focus := mentionedColumns(request, columns)
	quoted := make([]string, 0, len(focus))
	for _, c := range focus {
		quoted = append(quoted, strconv.Quote(c))
	}
	return strings.Replace(analysisTemplate, "{focus}", strings.Join(quoted, ", "), 1)
}

func strictScript() string {
	return strictTemplate
}

// mentionedColumns matches request tokens against column names, ignoring
// case and internal whitespace.
func mentionedColumns(request string, columns []string) []string {
	lower := strings.ToLower(request)
	compact := strings.Join(strings.Fields(lower), " ")
	var out []string
	for _, col := range columns {
		needle := strings.ToLower(strings.Join(strings.Fields(col), " "))
		if needle != "" && strings.Contains(compact, needle) {
			out = append(out, col)
		}
	}
	return out
}
