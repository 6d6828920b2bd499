// Package generator synthesizes Person records by chained conditional
// sampling and appends them to a base dataset.
//
// Fields are drawn strictly left to right; each draw depends only on fields
// already drawn for the same record:
//
//	gender -> age
//	occupation -> sleep_duration -> quality_of_sleep -> stress_level
//	occupation -> physical_activity_level -> bmi_category
//	(bmi_category, stress_level) -> blood_pressure
//	(physical_activity_level, bmi_category) -> heart_rate
//	occupation -> daily_steps
//	(quality_of_sleep, bmi_category, stress_level) -> sleep_disorder
//
// Records are independent of each other. All randomness comes from the one
// *sampling.Source handed to New.
package generator

import (
	"fmt"
	"slices"

	"sleepgen/internal/dataset"
	"sleepgen/internal/errs"
	"sleepgen/internal/sampling"
)

const stageGenerate = "generate"

// Generator produces records for one batch. It is not safe for concurrent use.
type Generator struct {
	src         *sampling.Source
	tables      tables
	occupations sampling.Table[string]
	known       map[string]bool
}

// Option customizes a Generator.
type Option func(*options)

type options struct {
	weights WeightSpec
}

// WithWeights replaces the default categorical weight tables.
func WithWeights(w WeightSpec) Option {
	return func(o *options) { o.weights = w }
}

// New builds a Generator drawing occupations from stats and randomness from src.
//
// Every weight table, including the occupation distribution, is validated
// here; a malformed table is a range error.
func New(stats Stats, src *sampling.Source, opts ...Option) (*Generator, error) {
	if src == nil {
		return nil, fmt.Errorf("generator: nil sampling source")
	}
	o := options{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(&o)
	}

	t, err := buildTables(o.weights)
	if err != nil {
		return nil, errs.Range(stageGenerate, "%w", err)
	}

	names := make([]string, 0, len(stats.Occupations))
	probs := make([]float64, 0, len(stats.Occupations))
	known := make(map[string]bool, len(stats.Occupations))
	for _, s := range stats.Occupations {
		names = append(names, s.Name)
		probs = append(probs, s.Probability)
		known[s.Name] = true
	}
	occ, err := sampling.NewTable(names, probs)
	if err != nil {
		return nil, errs.Range(stageGenerate, "occupation distribution: %w", err)
	}

	return &Generator{src: src, tables: t, occupations: occ, known: known}, nil
}

// Record generates one fully populated record with the given identifier.
//
// Numeric draws are clamped to their declared intervals; the finished record
// is then checked against every bound and enumeration, and any violation is
// returned as a range error instead of being corrected.
func (g *Generator) Record(id int64) (dataset.Person, error) {
	p := dataset.Person{PersonID: id}

	p.Gender = g.tables.gender.Pick(g.src)
	if p.Gender == Male {
		p.Age = g.src.IntRange(MinAgeMale, MaxAgeMale)
	} else {
		p.Age = g.src.IntRange(MinAgeFemale, MaxAgeFemale)
	}

	p.Occupation = g.occupations.Pick(g.src)
	p.SleepDuration = g.sleepDuration(p.Occupation)

	// trunc(sleep)-1 jittered by -1/0/+1, then re-clamped.
	base := int(p.SleepDuration) - 1
	p.QualityOfSleep = sampling.ClampInt(base+g.tables.qualityJitter.Pick(g.src), MinQuality, MaxQuality)

	p.PhysicalActive = g.draw(activityFor(p.Occupation))

	p.StressLevel = g.src.IntRange(MinStress, MaxStress)
	if p.QualityOfSleep >= 7 {
		p.StressLevel = max(MinStress, p.StressLevel-2)
	}

	switch {
	case p.PhysicalActive > 70:
		p.BMICategory = g.tables.bmiActive.Pick(g.src)
	case p.PhysicalActive > 50:
		p.BMICategory = g.tables.bmiModerate.Pick(g.src)
	default:
		p.BMICategory = g.tables.bmiSedentary.Pick(g.src)
	}

	p.BloodPressure = sampling.Choice(g.src, pressureFor(p.BMICategory, p.StressLevel))
	p.HeartRate = g.draw(heartRateFor(p.PhysicalActive, p.BMICategory))
	p.DailySteps = g.draw(stepsFor(p.Occupation))

	switch {
	case p.QualityOfSleep < 6 || (p.BMICategory == BMIObese && p.StressLevel > 6):
		p.SleepDisorder = g.tables.disorderSevere.Pick(g.src)
	case p.BMICategory == BMIOverweight && p.QualityOfSleep < 7:
		p.SleepDisorder = g.tables.disorderModerate.Pick(g.src)
	default:
		p.SleepDisorder = g.tables.disorderMild.Pick(g.src)
	}

	if err := g.check(p); err != nil {
		return dataset.Person{}, errs.Range(stageGenerate, "person_id %d: %w", id, err)
	}
	return p, nil
}

// Batch returns base followed by max(0, target-base.Len()) new records.
//
// New identifiers start at base.MaxPersonID()+1 and increase by one in
// generation order. The base rows are shared, never modified. When target
// does not exceed the current size the result holds exactly the base rows.
// On error nothing is returned; there is no partial batch.
func (g *Generator) Batch(base *dataset.Dataset, target int) (*dataset.Dataset, error) {
	if base == nil {
		return nil, errs.Data(stageGenerate, "base dataset is nil")
	}

	out := base.Clone()
	n := NewCount(base.Len(), target)
	if n == 0 {
		return out, nil
	}

	next := base.MaxPersonID()
	fresh := make([]dataset.Person, 0, n)
	for i := 1; i <= n; i++ {
		p, err := g.Record(next + int64(i))
		if err != nil {
			return nil, err
		}
		fresh = append(fresh, p)
	}
	out.Rows = slices.Grow(out.Rows, n)
	out.Append(fresh...)
	return out, nil
}

// NewCount reports how many records Batch will generate.
func NewCount(current, target int) int {
	return max(0, target-current)
}

func (g *Generator) draw(r intRange) int {
	return g.src.IntRange(r.lo, r.hi)
}

// sleepDuration draws from the occupation's normal branch, rounds to one
// decimal and clamps. A non-finite draw falls back to the branch mean.
func (g *Generator) sleepDuration(occupation string) float64 {
	n, ok := sleepByOccupation[occupation]
	if !ok {
		n = sleepDefault
	}
	v := g.src.Normal(n.mean, n.sd)
	if !sampling.Finite(v) {
		v = n.mean
	}
	return sampling.Clamp(sampling.Round1(v), MinSleep, MaxSleep)
}

func activityFor(occupation string) intRange {
	switch occupation {
	case "Doctor", "Engineer":
		return activityHigh
	default:
		return activityLow
	}
}

func pressureFor(bmi string, stress int) []string {
	switch {
	case bmi == BMINormal && stress < 5:
		return pressureRelaxed
	case bmi == BMIObese || stress > 6:
		return pressureStrained
	default:
		return pressureModerate
	}
}

func heartRateFor(activity int, bmi string) intRange {
	switch {
	case activity > 60 && bmi == BMINormal:
		return heartRateFit
	case bmi == BMIObese:
		return heartRateObese
	default:
		return heartRateMedium
	}
}

func stepsFor(occupation string) intRange {
	switch occupation {
	case "Doctor", "Nurse":
		return stepsClinical
	case "Software Engineer":
		return stepsDesk
	default:
		return stepsDefault
	}
}
