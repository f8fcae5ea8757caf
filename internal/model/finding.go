package model

// Relevance is the clinical relevance classification of a (variant,
// evidence) pair. Values are ordered: higher rank means more relevant.
type Relevance string

const (
	RelevanceIrrelevant         Relevance = "irrelevant"
	RelevancePossiblyRelevant   Relevance = "possibly_relevant"
	RelevanceClinicallyRelevant Relevance = "clinically_relevant"
)

// Rank returns the sort rank of a relevance level. Unknown values rank
// lowest.
func (r Relevance) Rank() int {
	switch r {
	case RelevanceClinicallyRelevant:
		return 2
	case RelevancePossiblyRelevant:
		return 1
	default:
		return 0
	}
}

// AllRelevances lists the valid relevance classifications.
func AllRelevances() []Relevance {
	return []Relevance{
		RelevanceIrrelevant,
		RelevancePossiblyRelevant,
		RelevanceClinicallyRelevant,
	}
}

// Direction is the direction of effect an allele is associated with.
type Direction string

const (
	DirectionRisk       Direction = "risk"
	DirectionProtective Direction = "protective"
	DirectionAmbiguous  Direction = "ambiguous"
)

// AllDirections lists the valid directions of effect.
func AllDirections() []Direction {
	return []Direction{DirectionRisk, DirectionProtective, DirectionAmbiguous}
}

// Finding is the scored outcome for one carrier-confirmed variant against
// one evidence record. Findings are immutable once created. Degraded marks
// findings produced by the conservative fallback (backend timeout or
// unparsable output) rather than a real classification.
type Finding struct {
	VariantRSID string    `json:"variant_rsid"`
	EvidenceID  string    `json:"evidence_id"`
	GeneSymbol  string    `json:"gene_symbol"`
	Relevance   Relevance `json:"relevance"`
	Direction   Direction `json:"direction"`
	Rationale   string    `json:"rationale"`
	Degraded    bool      `json:"degraded,omitempty"`
}

// ID returns the finding's identity pair. The same pair never appears in
// more than one delta report across all runs.
func (f Finding) ID() FindingID {
	return FindingID{VariantRSID: f.VariantRSID, EvidenceID: f.EvidenceID}
}

// FindingID identifies a finding by its (variant, evidence) pair.
type FindingID struct {
	VariantRSID string `json:"variant_rsid"`
	EvidenceID  string `json:"evidence_id"`
}
