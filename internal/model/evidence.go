package model

import "time"

// EvidenceRecord is a single piece of published literature referencing one
// or more gene symbols. ExternalID is the idempotency key: at most one
// record may exist per external id across all runs, enforced by the store.
type EvidenceRecord struct {
	ExternalID  string    `json:"external_id"`
	GeneSymbols []string  `json:"gene_symbols"`
	Title       string    `json:"title"`
	Abstract    string    `json:"abstract"`
	PublishedAt time.Time `json:"published_at"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// MentionsGene reports whether the record's gene annotations include the
// given symbol.
func (r EvidenceRecord) MentionsGene(symbol string) bool {
	for _, g := range r.GeneSymbols {
		if g == symbol {
			return true
		}
	}
	return false
}
