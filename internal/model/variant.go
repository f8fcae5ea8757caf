package model

// VariantCall is a raw genotype call from the genotyping feed. Calls are
// immutable once recorded; validation never mutates them.
type VariantCall struct {
	RSID       string `json:"rsid"`
	Genotype   string `json:"genotype"`
	GeneSymbol string `json:"gene_symbol"`
}

// Zygosity classifies the allele pair observed at a locus.
type Zygosity string

const (
	ZygosityHomozygous   Zygosity = "homozygous"
	ZygosityHeterozygous Zygosity = "heterozygous"
)

// ValidatedVariant is a VariantCall that passed exclusion filtering and
// genotype normalization. CarrierConfirmed is true only for heterozygous
// calls: homozygous calls are treated as reference alleles. The pipeline
// cannot distinguish homozygous-reference from homozygous-pathogenic
// without external clinical annotation; that is a documented limitation
// of the deterministic policy, not something to patch here.
type ValidatedVariant struct {
	VariantCall
	Zygosity         Zygosity `json:"zygosity"`
	CarrierConfirmed bool     `json:"carrier_confirmed"`
}

// ValidationError records a malformed genotype call. It is per-record:
// the run continues past it.
type ValidationError struct {
	RSID     string `json:"rsid"`
	Genotype string `json:"genotype"`
	Reason   string `json:"reason"`
}

func (e ValidationError) Error() string {
	return "invalid genotype for " + e.RSID + ": " + e.Reason
}
