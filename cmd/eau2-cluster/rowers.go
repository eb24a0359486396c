package main

import "github.com/eau2/eau2/dataframe"

// sumFloatRower accumulates column Col of every row it visits.
type sumFloatRower struct {
	Col   int
	Total float32
}

func (r *sumFloatRower) Accept(row *dataframe.Row) bool {
	v, _ := row.GetFloat(r.Col)
	r.Total += v
	return true
}
