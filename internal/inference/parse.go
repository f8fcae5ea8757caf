package inference

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// classification is the structured response expected from the backend.
type classification struct {
	Relevance string `json:"relevance"`
	Direction string `json:"direction"`
	Rationale string `json:"rationale"`
}

// parseClassification extracts relevance and direction from the backend's
// raw text output. Models occasionally wrap JSON in code fences or prose;
// cleanJSON strips the common cases. Unknown enum values are rejected so
// the caller degrades conservatively instead of reporting a guess.
func parseClassification(text string) (model.Relevance, model.Direction, string, error) {
	text = cleanJSON(text)

	var c classification
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return "", "", "", eris.Wrap(err, "inference: unmarshal classification")
	}

	rel := model.Relevance(strings.ToLower(strings.TrimSpace(c.Relevance)))
	if !validRelevance(rel) {
		return "", "", "", eris.Errorf("inference: unknown relevance %q", c.Relevance)
	}

	dir := model.Direction(strings.ToLower(strings.TrimSpace(c.Direction)))
	if !validDirection(dir) {
		return "", "", "", eris.Errorf("inference: unknown direction %q", c.Direction)
	}

	return rel, dir, strings.TrimSpace(c.Rationale), nil
}

func validRelevance(r model.Relevance) bool {
	for _, v := range model.AllRelevances() {
		if v == r {
			return true
		}
	}
	return false
}

func validDirection(d model.Direction) bool {
	for _, v := range model.AllDirections() {
		if v == d {
			return true
		}
	}
	return false
}

// cleanJSON strips markdown code fences and leading/trailing prose around
// the first top-level JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return text
}
