package main

import "github.com/eau2/eau2/dataframe"

// sumFloatRower accumulates column Col of every row it visits, the
// dataframe.Rower application extension point from SPEC_FULL.md §6.
type sumFloatRower struct {
	Col   int
	Total float32
}

func (r *sumFloatRower) Accept(row *dataframe.Row) bool {
	v, _ := row.GetFloat(r.Col)
	r.Total += v
	return true
}
