package sandbox

import "strings"

// basePreamble is always injected. It defines the structured-output
// helpers a script uses to return tables.
const basePreamble = `import json as _json

def emit_rows(name, columns, rows):
    print(_json.dumps({
        "name": str(name),
        "columns": [str(c) for c in columns],
        "rows": [list(r) for r in rows],
    }))
`

// dataPreamble is injected when the invocation has input data. The helpers
// exist to lower the failure rate of generated code on column-name
// mismatches; they add no capability beyond the loaded frame.
const dataPreamble = `import pandas as _pd

df = _pd.read_csv("data.csv")

def find_column(name):
    want = "".join(str(name).lower().split())
    for col in df.columns:
        if "".join(str(col).lower().split()) == want:
            return col
    hints = ", ".join(str(c) for c in df.columns)
    raise KeyError("no column like %r; available: %s" % (name, hints))

def to_number(series):
    return _pd.to_numeric(series, errors="coerce")

def top_n(frame, column, n=5):
    return frame.sort_values(column, ascending=False).head(n)

def emit_table(name, frame):
    frame = frame.reset_index()
    emit_rows(name, frame.columns, _json.loads(frame.to_json(orient="values")))
`

func buildPreamble(input Input) string {
	var b strings.Builder
	b.WriteString(basePreamble)
	if input.DataPath != "" {
		b.WriteString("\n")
		b.WriteString(dataPreamble)
	}
	return b.String()
}
