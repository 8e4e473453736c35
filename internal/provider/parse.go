package provider

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

// ParseAnalysis extracts the structured analysis object from a model's text
// output. Models are prompted to answer with a single JSON object but often
// wrap it in markdown fences or prose; this takes the outermost braces.
// The raw extracted JSON is returned alongside for the opaque vote payload.
func ParseAnalysis(text string) (*model.ParsedAnalysis, json.RawMessage, error) {
	candidate := extractJSONObject(text)
	if candidate == "" {
		return nil, nil, eris.New("parse: no JSON object in response")
	}

	var parsed model.ParsedAnalysis
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, nil, eris.Wrap(err, "parse: unmarshal analysis")
	}

	parsed.ItemName = strings.TrimSpace(parsed.ItemName)
	parsed.Decision = model.Decision(strings.ToUpper(strings.TrimSpace(string(parsed.Decision))))
	if parsed.Decision != model.DecisionBuy {
		parsed.Decision = model.DecisionSell
	}
	if parsed.EstimatedValue < 0 {
		parsed.EstimatedValue = 0
	}

	return &parsed, json.RawMessage(candidate), nil
}

// extractJSONObject returns the substring from the first '{' to the last '}',
// or "" when no object is present.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
