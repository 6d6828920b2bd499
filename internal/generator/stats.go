package generator

import (
	"sleepgen/internal/dataset"
	"sleepgen/internal/errs"
)

const stageStats = "stats"

// OccupationShare is one entry of the empirical occupation distribution.
type OccupationShare struct {
	Name        string  `yaml:"name" json:"name"`
	Count       int     `yaml:"count" json:"count"`
	Probability float64 `yaml:"probability" json:"probability"`
}

// Stats is what the generator learns from the base dataset.
type Stats struct {
	Rows        int               `yaml:"rows" json:"rows"`
	MaxPersonID int64             `yaml:"max_person_id" json:"max_person_id"`
	Occupations []OccupationShare `yaml:"occupations" json:"occupations"`
}

// DeriveStats computes the empirical occupation distribution (count/total per
// value, in order of first appearance) and the largest person_id.
//
// It fails with a data error when the dataset is nil or empty, lacks the
// person_id or occupation column, or holds a row with an empty occupation.
func DeriveStats(ds *dataset.Dataset) (Stats, error) {
	if ds == nil || ds.Len() == 0 {
		return Stats{}, errs.Data(stageStats, "dataset is empty")
	}
	for _, col := range []string{dataset.ColPersonID, dataset.ColOccupation} {
		if !ds.HasColumn(col) {
			return Stats{}, errs.Data(stageStats, "missing required column %q", col)
		}
	}

	counts := map[string]int{}
	var order []string
	for i, r := range ds.Rows {
		occ := r.Person.Occupation
		if occ == "" {
			return Stats{}, errs.Data(stageStats, "row %d: missing required field %q", i+1, dataset.ColOccupation)
		}
		if _, ok := counts[occ]; !ok {
			order = append(order, occ)
		}
		counts[occ]++
	}

	total := float64(ds.Len())
	shares := make([]OccupationShare, 0, len(order))
	for _, occ := range order {
		shares = append(shares, OccupationShare{
			Name:        occ,
			Count:       counts[occ],
			Probability: float64(counts[occ]) / total,
		})
	}

	return Stats{
		Rows:        ds.Len(),
		MaxPersonID: ds.MaxPersonID(),
		Occupations: shares,
	}, nil
}
