package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepgen/internal/dataset"
	"sleepgen/internal/errs"
	"sleepgen/internal/sampling"
)

var baseOccupations = []string{
	"Software Engineer", "Doctor", "Sales Representative", "Teacher", "Nurse",
	"Engineer", "Accountant", "Scientist", "Lawyer", "Salesperson", "Manager",
}

// baseDataset builds n rows with ids 1..n and occupations cycling through
// baseOccupations.
func baseDataset(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	for i := 0; i < n; i++ {
		ds.Append(dataset.Person{
			PersonID:   int64(i + 1),
			Gender:     Male,
			Age:        30,
			Occupation: baseOccupations[i%len(baseOccupations)],
		})
	}
	return ds
}

func newGenerator(t *testing.T, ds *dataset.Dataset, seed int64, opts ...Option) *Generator {
	t.Helper()
	stats, err := DeriveStats(ds)
	require.NoError(t, err)
	g, err := New(stats, sampling.NewSource(seed), opts...)
	require.NoError(t, err)
	return g
}

func TestDeriveStats(t *testing.T) {
	ds := dataset.New()
	for i, occ := range []string{"Nurse", "Doctor", "Nurse", "Teacher"} {
		ds.Append(dataset.Person{PersonID: int64(10 + i), Occupation: occ})
	}

	stats, err := DeriveStats(ds)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, int64(13), stats.MaxPersonID)
	assert.Equal(t, []OccupationShare{
		{Name: "Nurse", Count: 2, Probability: 0.5},
		{Name: "Doctor", Count: 1, Probability: 0.25},
		{Name: "Teacher", Count: 1, Probability: 0.25},
	}, stats.Occupations)
}

func TestDeriveStats_DataErrors(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		_, err := DeriveStats(nil)
		assert.ErrorIs(t, err, errs.ErrData)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := DeriveStats(dataset.New())
		assert.ErrorIs(t, err, errs.ErrData)
	})
	t.Run("missing_column", func(t *testing.T) {
		ds := baseDataset(t, 3)
		ds.Columns = []string{dataset.ColPersonID}
		_, err := DeriveStats(ds)
		assert.ErrorIs(t, err, errs.ErrData)
		assert.Contains(t, err.Error(), "occupation")
	})
	t.Run("empty_occupation", func(t *testing.T) {
		ds := baseDataset(t, 3)
		ds.Rows[1].Person.Occupation = ""
		_, err := DeriveStats(ds)
		assert.ErrorIs(t, err, errs.ErrData)
		assert.Contains(t, err.Error(), "row 2")
	})
}

func TestRecord_RespectsBoundsAndEnumerations(t *testing.T) {
	g := newGenerator(t, baseDataset(t, 374), 20240601)

	known := map[string]bool{}
	for _, o := range baseOccupations {
		known[o] = true
	}

	for i := 0; i < 5000; i++ {
		p, err := g.Record(int64(1000 + i))
		require.NoError(t, err)

		require.Equal(t, int64(1000+i), p.PersonID)
		require.Contains(t, []string{Male, Female}, p.Gender)
		if p.Gender == Male {
			require.True(t, p.Age >= 27 && p.Age <= 48, "male age %d", p.Age)
		} else {
			require.True(t, p.Age >= 29 && p.Age <= 59, "female age %d", p.Age)
		}
		require.True(t, known[p.Occupation], p.Occupation)
		require.True(t, p.SleepDuration >= 5.5 && p.SleepDuration <= 9.0, "sleep %v", p.SleepDuration)
		require.InDelta(t, sampling.Round1(p.SleepDuration), p.SleepDuration, 1e-9)
		require.True(t, p.QualityOfSleep >= 3 && p.QualityOfSleep <= 9, "quality %d", p.QualityOfSleep)
		require.True(t, p.StressLevel >= 3 && p.StressLevel <= 8, "stress %d", p.StressLevel)
		if p.QualityOfSleep >= 7 {
			require.LessOrEqual(t, p.StressLevel, 6)
		}
		require.True(t, p.PhysicalActive >= 30 && p.PhysicalActive <= 89)
		require.Contains(t, []string{BMINormal, BMIOverweight, BMIObese}, p.BMICategory)
		require.True(t, p.HeartRate >= 65 && p.HeartRate <= 85)
		require.True(t, p.DailySteps >= 4000 && p.DailySteps <= 9999)
		require.Contains(t, []string{DisorderNone, DisorderInsomnia, DisorderApnea}, p.SleepDisorder)
	}
}

func TestRecord_DependencyChainBranches(t *testing.T) {
	g := newGenerator(t, baseDataset(t, 374), 99)

	for i := 0; i < 3000; i++ {
		p, err := g.Record(int64(i + 1))
		require.NoError(t, err)

		base := int(p.SleepDuration) - 1
		require.True(t, p.QualityOfSleep >= max(3, base-1) && p.QualityOfSleep <= min(9, base+1),
			"quality %d for sleep %v", p.QualityOfSleep, p.SleepDuration)

		switch p.Occupation {
		case "Doctor", "Engineer":
			require.True(t, p.PhysicalActive >= 40 && p.PhysicalActive <= 89)
		default:
			require.True(t, p.PhysicalActive >= 30 && p.PhysicalActive <= 74)
		}

		switch p.Occupation {
		case "Doctor", "Nurse":
			require.True(t, p.DailySteps >= 7000 && p.DailySteps <= 9999)
		case "Software Engineer":
			require.True(t, p.DailySteps >= 4000 && p.DailySteps <= 5999)
		default:
			require.True(t, p.DailySteps >= 5000 && p.DailySteps <= 7999)
		}

		switch {
		case p.BMICategory == BMINormal && p.StressLevel < 5:
			require.Contains(t, pressureRelaxed, p.BloodPressure)
		case p.BMICategory == BMIObese || p.StressLevel > 6:
			require.Contains(t, pressureStrained, p.BloodPressure)
		default:
			require.Contains(t, pressureModerate, p.BloodPressure)
		}

		switch {
		case p.PhysicalActive > 60 && p.BMICategory == BMINormal:
			require.True(t, p.HeartRate >= 65 && p.HeartRate <= 71)
		case p.BMICategory == BMIObese:
			require.True(t, p.HeartRate >= 80 && p.HeartRate <= 85)
		default:
			require.True(t, p.HeartRate >= 70 && p.HeartRate <= 78)
		}
	}
}

func TestRecord_SameSeedSameRecords(t *testing.T) {
	ds := baseDataset(t, 50)
	a := newGenerator(t, ds, 7)
	b := newGenerator(t, ds, 7)

	for i := 0; i < 200; i++ {
		pa, err := a.Record(int64(i))
		require.NoError(t, err)
		pb, err := b.Record(int64(i))
		require.NoError(t, err)
		require.Equal(t, pa, pb)
	}
}

func TestBatch_ExpandsToTarget(t *testing.T) {
	base := baseDataset(t, 374)
	g := newGenerator(t, base, 1)

	out, err := g.Batch(base, 800)
	require.NoError(t, err)

	require.Equal(t, 800, out.Len())
	require.Equal(t, 374, base.Len(), "base must not grow")
	for i := 0; i < 374; i++ {
		require.Equal(t, base.Rows[i], out.Rows[i])
	}

	seen := map[int64]bool{}
	for i, r := range out.Rows {
		require.False(t, seen[r.Person.PersonID], "duplicate id %d", r.Person.PersonID)
		seen[r.Person.PersonID] = true
		if i >= 374 {
			require.Equal(t, int64(i+1), r.Person.PersonID, "ids 375..800 in order")
			require.True(t, r.Generated())
		}
	}
}

func TestBatch_TargetNotAboveCurrentIsNoop(t *testing.T) {
	base := baseDataset(t, 374)
	g := newGenerator(t, base, 1)

	for _, target := range []int{0, 300, 374} {
		out, err := g.Batch(base, target)
		require.NoError(t, err)
		assert.Equal(t, base.Rows, out.Rows)
	}

	assert.Equal(t, 0, NewCount(374, 300))
	assert.Equal(t, 426, NewCount(374, 800))
}

func TestBatch_IdsStartAfterMaxNotAfterCount(t *testing.T) {
	base := baseDataset(t, 3)
	base.Rows[1].Person.PersonID = 90

	out, err := newGenerator(t, base, 5).Batch(base, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(91), out.Rows[3].Person.PersonID)
	assert.Equal(t, int64(92), out.Rows[4].Person.PersonID)
}

func TestBatch_NilBase(t *testing.T) {
	g := newGenerator(t, baseDataset(t, 3), 5)
	_, err := g.Batch(nil, 10)
	assert.ErrorIs(t, err, errs.ErrData)
}

func TestNew_MalformedWeightsAreRangeErrors(t *testing.T) {
	stats, err := DeriveStats(baseDataset(t, 10))
	require.NoError(t, err)

	w := DefaultWeights()
	w.BMIModerate.Weights = []float64{0.4, -0.5, 0.1}
	_, err = New(stats, sampling.NewSource(1), WithWeights(w))
	require.ErrorIs(t, err, errs.ErrRange)
	assert.Contains(t, err.Error(), "bmi_category(moderate)")

	w = DefaultWeights()
	w.QualityJitter.Weights = []float64{0.5, 0.5}
	_, err = New(stats, sampling.NewSource(1), WithWeights(w))
	require.ErrorIs(t, err, errs.ErrRange)

	_, err = New(Stats{}, sampling.NewSource(1))
	require.ErrorIs(t, err, errs.ErrRange, "empty occupation distribution")

	_, err = New(stats, nil)
	require.Error(t, err)
}

func TestRecord_OutOfEnumerationIsRangeError(t *testing.T) {
	w := DefaultWeights()
	w.Gender = Weights[string]{Labels: []string{"Unknown"}, Weights: []float64{1}}
	g := newGenerator(t, baseDataset(t, 10), 3, WithWeights(w))

	_, err := g.Record(1)
	require.ErrorIs(t, err, errs.ErrRange)
	assert.Contains(t, err.Error(), "gender")

	_, err = g.Batch(baseDataset(t, 10), 20)
	require.ErrorIs(t, err, errs.ErrRange)
}
