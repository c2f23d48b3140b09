package research

import (
	"encoding/json"
	"strings"
)

// RenderResults converts the evidence log into the fenced-JSON block fed to
// the planner and composer prompts. Dedup placeholders and pruned entries
// are rendered too, so the model can see what it chose to discard and why.
// The output is deterministic for a given log.
func RenderResults(results []QueryResult) string {
	if len(results) == 0 {
		return ""
	}

	var out strings.Builder
	for _, result := range results {
		data, err := json.MarshalIndent(result, "", "    ")
		if err != nil {
			// Individual entries are always marshalable; keep the
			// block well-formed regardless.
			continue
		}
		out.WriteString("```\n")
		out.Write(data)
		out.WriteString("\n```\n\n")
	}

	return out.String()
}
