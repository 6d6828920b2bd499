package generator

import (
	"fmt"

	"sleepgen/internal/sampling"
)

// Category values.
const (
	Male   = "Male"
	Female = "Female"

	BMINormal     = "Normal"
	BMIOverweight = "Overweight"
	BMIObese      = "Obese"

	DisorderNone     = "None"
	DisorderInsomnia = "Insomnia"
	DisorderApnea    = "Sleep Apnea"
)

// Closed bounds every generated record must respect.
const (
	MinSleep, MaxSleep         = 5.5, 9.0
	MinQuality, MaxQuality     = 3, 9
	MinStress, MaxStress       = 3, 8
	MinAgeMale, MaxAgeMale     = 27, 48
	MinAgeFemale, MaxAgeFemale = 29, 59
)

// intRange is a closed integer interval.
type intRange struct{ lo, hi int }

func (r intRange) contains(v int) bool { return v >= r.lo && v <= r.hi }

// normal holds the parameters of one sleep-duration branch.
type normal struct{ mean, sd float64 }

var (
	sleepByOccupation = map[string]normal{
		"Doctor":   {7.2, 0.8},
		"Nurse":    {7.5, 1.0},
		"Engineer": {8.0, 0.5},
	}
	sleepDefault = normal{6.8, 0.7}

	activityHigh = intRange{40, 89} // Doctor, Engineer
	activityLow  = intRange{30, 74}

	heartRateFit    = intRange{65, 71} // activity > 60 and Normal BMI
	heartRateObese  = intRange{80, 85}
	heartRateMedium = intRange{70, 78}

	stepsClinical = intRange{7000, 9999} // Doctor, Nurse
	stepsDesk     = intRange{4000, 5999} // Software Engineer
	stepsDefault  = intRange{5000, 7999}

	pressureRelaxed  = []string{"120/80", "115/75", "125/80"}
	pressureStrained = []string{"140/90", "135/88", "142/92", "140/95"}
	pressureModerate = []string{"130/85", "128/84", "125/82"}
)

// Weights is one categorical distribution in literal form.
type Weights[T any] struct {
	Labels  []T
	Weights []float64
}

// WeightSpec is the full set of categorical distributions used by the
// dependency chain. DefaultWeights returns the production values; tests and
// callers may supply their own, which are validated by New.
type WeightSpec struct {
	Gender        Weights[string]
	QualityJitter Weights[int]

	BMIActive    Weights[string] // activity > 70
	BMIModerate  Weights[string] // activity > 50
	BMISedentary Weights[string]

	DisorderSevere   Weights[string]
	DisorderModerate Weights[string]
	DisorderMild     Weights[string]
}

// DefaultWeights returns the production weight tables.
func DefaultWeights() WeightSpec {
	bmi := []string{BMINormal, BMIOverweight, BMIObese}
	disorders := []string{DisorderNone, DisorderInsomnia, DisorderApnea}

	return WeightSpec{
		Gender:        Weights[string]{[]string{Male, Female}, []float64{0.5, 0.5}},
		QualityJitter: Weights[int]{[]int{-1, 0, 1}, []float64{0.2, 0.5, 0.3}},

		BMIActive:    Weights[string]{bmi, []float64{0.7, 0.2, 0.1}},
		BMIModerate:  Weights[string]{bmi, []float64{0.4, 0.5, 0.1}},
		BMISedentary: Weights[string]{bmi, []float64{0.3, 0.4, 0.3}},

		DisorderSevere:   Weights[string]{disorders, []float64{0.3, 0.35, 0.35}},
		DisorderModerate: Weights[string]{disorders, []float64{0.5, 0.25, 0.25}},
		DisorderMild:     Weights[string]{disorders, []float64{0.7, 0.15, 0.15}},
	}
}

// tables are the validated, CDF-backed forms of a WeightSpec.
type tables struct {
	gender        sampling.Table[string]
	qualityJitter sampling.Table[int]

	bmiActive, bmiModerate, bmiSedentary sampling.Table[string]

	disorderSevere, disorderModerate, disorderMild sampling.Table[string]
}

func buildTables(w WeightSpec) (tables, error) {
	var (
		t   tables
		err error
	)
	str := func(name string, in Weights[string], dst *sampling.Table[string]) {
		if err != nil {
			return
		}
		if *dst, err = sampling.NewTable(in.Labels, in.Weights); err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
	}

	str("gender", w.Gender, &t.gender)
	str("bmi_category(active)", w.BMIActive, &t.bmiActive)
	str("bmi_category(moderate)", w.BMIModerate, &t.bmiModerate)
	str("bmi_category(sedentary)", w.BMISedentary, &t.bmiSedentary)
	str("sleep_disorder(severe)", w.DisorderSevere, &t.disorderSevere)
	str("sleep_disorder(moderate)", w.DisorderModerate, &t.disorderModerate)
	str("sleep_disorder(mild)", w.DisorderMild, &t.disorderMild)
	if err != nil {
		return tables{}, err
	}

	if t.qualityJitter, err = sampling.NewTable(w.QualityJitter.Labels, w.QualityJitter.Weights); err != nil {
		return tables{}, fmt.Errorf("quality_of_sleep jitter: %w", err)
	}
	return t, nil
}
