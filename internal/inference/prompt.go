package inference

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// maxAbstractChars bounds the prompt context so runs stay reproducible and
// within the backend's context window regardless of abstract length.
const maxAbstractChars = 4000

const systemPrompt = `You are a clinical literature triage assistant. Given a confirmed genetic variant carried by a patient and a newly published paper, classify how relevant the paper is to that variant and the direction of effect it reports. Do not give clinical advice, treatment recommendations, or free-form commentary. Respond with a single valid JSON object and nothing else:
{"relevance": "irrelevant" | "possibly_relevant" | "clinically_relevant", "direction": "risk" | "protective" | "ambiguous", "rationale": "<one sentence citing the paper>"}`

const userPromptTemplate = `Variant: %s (zygosity: %s, gene: %s)

Paper title: %s

Abstract:
%s`

// BuildPrompt assembles the bounded, deterministic prompt for one
// (variant, evidence) pair. The same pair always produces the same prompt.
func BuildPrompt(variant model.ValidatedVariant, evidence model.EvidenceRecord) (system, user string) {
	abstract := strings.TrimSpace(evidence.Abstract)
	if len(abstract) > maxAbstractChars {
		// Walk back to a rune boundary so the cut never leaves invalid
		// UTF-8 in the prompt.
		cut := maxAbstractChars
		for cut > 0 && !utf8.RuneStart(abstract[cut]) {
			cut--
		}
		abstract = abstract[:cut]
	}
	user = fmt.Sprintf(userPromptTemplate,
		variant.RSID,
		variant.Zygosity,
		variant.GeneSymbol,
		strings.TrimSpace(evidence.Title),
		abstract,
	)
	return systemPrompt, user
}
