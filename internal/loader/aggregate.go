package loader

import (
	"fmt"

	"marketcore/pkg/contracts/domain"
)

// Aggregate merges the Loaded tables of outcomes. The first Loaded table
// fixes the signature; later tables that differ are left out and noted as
// warnings. The aggregate is never nil.
func Aggregate(outcomes []domain.LoadOutcome) domain.BatchResult {
	result := domain.BatchResult{Outcomes: outcomes, Contributing: []int{}}

	var (
		ref    domain.Signature
		tables []*domain.NormalizedTable
	)
	for i, o := range outcomes {
		if !o.IsLoaded() {
			continue
		}
		sig := o.Table.Signature()
		if tables == nil {
			ref = sig
		} else if !ref.Equal(sig) {
			result.Warnings = append(result.Warnings, domain.LoadWarning{
				Index:   i,
				Path:    o.Source.Path,
				Message: fmt.Sprintf("schema mismatch with %s: %s", outcomes[result.Contributing[0]].Source.Name(), ref.Diff(sig)),
			})
			continue
		}
		tables = append(tables, o.Table)
		result.Contributing = append(result.Contributing, i)
	}

	if len(tables) == 0 {
		result.Aggregate = domain.EmptyTable()
		return result
	}
	agg, err := domain.Concat(tables...)
	if err != nil {
		result.Aggregate = domain.EmptyTable()
		result.Contributing = []int{}
		result.Warnings = append(result.Warnings, domain.LoadWarning{Index: -1, Message: err.Error()})
		return result
	}
	result.Aggregate = agg
	return result
}
