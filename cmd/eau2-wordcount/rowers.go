package main

import "github.com/eau2/eau2/dataframe"

// sumIntRower accumulates column Col of every row it visits.
type sumIntRower struct {
	Col   int
	Total int64
}

func (r *sumIntRower) Accept(row *dataframe.Row) bool {
	v, _ := row.GetInt(r.Col)
	r.Total += int64(v)
	return true
}

// aboveIntRower accepts rows whose Col value exceeds Threshold, the
// dataframe.Rower predicate form Filter uses.
type aboveIntRower struct {
	Col       int
	Threshold int32
}

func (r *aboveIntRower) Accept(row *dataframe.Row) bool {
	v, _ := row.GetInt(r.Col)
	return v > r.Threshold
}
