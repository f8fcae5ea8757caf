// Package validator converts raw genotype calls into confirmed-carrier
// variants. It is pure computation: no I/O, no retries, deterministic for
// a given input.
package validator

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/model"
	"github.com/guardian-genomics/guardian-cli/internal/rules"
)

// Result holds the outcome of validating a batch of calls. Malformed
// records land in Errors; the batch is never aborted because of them.
type Result struct {
	Variants []model.ValidatedVariant
	Errors   []model.ValidationError
}

// Validate applies the deterministic filter to each call, in order:
//
//  1. Calls whose rsid appears in the exclusion rule set are discarded
//     entirely; they never reach downstream stages.
//  2. The genotype string is normalized: separator characters ("/", "|")
//     are stripped and alleles deduplicated into a set.
//  3. Exactly one distinct allele classifies as homozygous with
//     CarrierConfirmed=false — homozygous calls are assumed to be the
//     reference allele absent external clinical annotation.
//  4. Exactly two distinct alleles classify as heterozygous with
//     CarrierConfirmed=true.
//
// Genotypes that are empty after normalization or carry more than two
// distinct alleles yield a per-record ValidationError.
func Validate(calls []model.VariantCall, rs *rules.RuleSet) Result {
	var res Result
	excluded := 0

	for _, call := range calls {
		if rs.Excluded(call.RSID) {
			excluded++
			zap.L().Debug("validator: blocked known false positive",
				zap.String("rsid", call.RSID),
				zap.String("rule_set_version", rs.Version),
			)
			continue
		}

		alleles := distinctAlleles(call.Genotype)
		switch len(alleles) {
		case 0:
			res.Errors = append(res.Errors, model.ValidationError{
				RSID:     call.RSID,
				Genotype: call.Genotype,
				Reason:   "empty genotype after normalization",
			})
		case 1:
			res.Variants = append(res.Variants, model.ValidatedVariant{
				VariantCall:      call,
				Zygosity:         model.ZygosityHomozygous,
				CarrierConfirmed: false,
			})
		case 2:
			res.Variants = append(res.Variants, model.ValidatedVariant{
				VariantCall:      call,
				Zygosity:         model.ZygosityHeterozygous,
				CarrierConfirmed: true,
			})
			zap.L().Info("validator: confirmed heterozygous carrier",
				zap.String("rsid", call.RSID),
				zap.String("genotype", call.Genotype),
				zap.String("gene", call.GeneSymbol),
			)
		default:
			res.Errors = append(res.Errors, model.ValidationError{
				RSID:     call.RSID,
				Genotype: call.Genotype,
				Reason:   fmt.Sprintf("%d distinct alleles, expected at most 2", len(alleles)),
			})
		}
	}

	zap.L().Info("validator: batch complete",
		zap.Int("calls", len(calls)),
		zap.Int("excluded", excluded),
		zap.Int("validated", len(res.Variants)),
		zap.Int("errors", len(res.Errors)),
	)
	return res
}

// Carriers filters a validation result down to carrier-confirmed variants.
// Only these are ever eligible for relevance scoring.
func (r Result) Carriers() []model.ValidatedVariant {
	var out []model.ValidatedVariant
	for _, v := range r.Variants {
		if v.CarrierConfirmed {
			out = append(out, v)
		}
	}
	return out
}

// distinctAlleles strips genotype separators and returns the distinct
// alleles in first-seen order.
func distinctAlleles(genotype string) []string {
	cleaned := strings.NewReplacer("/", "", "|", "").Replace(genotype)
	var out []string
	seen := make(map[rune]bool)
	for _, r := range cleaned {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, string(r))
	}
	return out
}
