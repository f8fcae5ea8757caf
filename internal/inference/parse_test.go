package inference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

func TestParseClassification(t *testing.T) {
	rel, dir, rationale, err := parseClassification(
		`{"relevance": "clinically_relevant", "direction": "risk", "rationale": "Reports increased risk for carriers."}`)
	require.NoError(t, err)
	assert.Equal(t, model.RelevanceClinicallyRelevant, rel)
	assert.Equal(t, model.DirectionRisk, dir)
	assert.Equal(t, "Reports increased risk for carriers.", rationale)
}

func TestParseClassificationCodeFence(t *testing.T) {
	raw := "```json\n{\"relevance\": \"possibly_relevant\", \"direction\": \"ambiguous\", \"rationale\": \"Mentions the gene only in passing.\"}\n```"
	rel, dir, _, err := parseClassification(raw)
	require.NoError(t, err)
	assert.Equal(t, model.RelevancePossiblyRelevant, rel)
	assert.Equal(t, model.DirectionAmbiguous, dir)
}

func TestParseClassificationSurroundingProse(t *testing.T) {
	raw := `Here is my classification:
{"relevance": "irrelevant", "direction": "ambiguous", "rationale": "Different gene family."}
Let me know if you need more.`
	rel, dir, _, err := parseClassification(raw)
	require.NoError(t, err)
	assert.Equal(t, model.RelevanceIrrelevant, rel)
	assert.Equal(t, model.DirectionAmbiguous, dir)
}

func TestParseClassificationCaseInsensitiveEnums(t *testing.T) {
	rel, dir, _, err := parseClassification(
		`{"relevance": "Clinically_Relevant", "direction": "PROTECTIVE", "rationale": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, model.RelevanceClinicallyRelevant, rel)
	assert.Equal(t, model.DirectionProtective, dir)
}

func TestParseClassificationRejectsUnknownEnums(t *testing.T) {
	_, _, _, err := parseClassification(
		`{"relevance": "very_relevant", "direction": "risk", "rationale": "x"}`)
	assert.Error(t, err)

	_, _, _, err = parseClassification(
		`{"relevance": "irrelevant", "direction": "sideways", "rationale": "x"}`)
	assert.Error(t, err)
}

func TestParseClassificationRejectsNonJSON(t *testing.T) {
	_, _, _, err := parseClassification("I cannot classify this paper.")
	assert.Error(t, err)
}

func TestBuildPromptTruncatesAbstract(t *testing.T) {
	variant := model.ValidatedVariant{
		VariantCall: model.VariantCall{RSID: "rs123", Genotype: "A/G", GeneSymbol: "BRCA1"},
		Zygosity:    model.ZygosityHeterozygous,
	}
	evidence := model.EvidenceRecord{
		ExternalID: "PMID:1",
		Title:      "Some title",
		Abstract:   strings.Repeat("x", maxAbstractChars+500),
	}

	system, user := BuildPrompt(variant, evidence)
	assert.Contains(t, system, "single valid JSON object")
	assert.Contains(t, user, "rs123")
	assert.Contains(t, user, "BRCA1")
	assert.Less(t, len(user), maxAbstractChars+200)

	// Deterministic for the same pair.
	_, user2 := BuildPrompt(variant, evidence)
	assert.Equal(t, user, user2)
}
