// Package dataset holds the Person record model and the flat-table codec
// used to load and persist the sleep health dataset.
package dataset

import (
	"strconv"
)

// Canonical (normalized) column names. Input headers are normalized to these
// with lowercase + spaces-to-underscores, so "Quality of Sleep" maps to
// "quality_of_sleep".
const (
	ColPersonID       = "person_id"
	ColGender         = "gender"
	ColAge            = "age"
	ColOccupation     = "occupation"
	ColSleepDuration  = "sleep_duration"
	ColQualityOfSleep = "quality_of_sleep"
	ColPhysicalActive = "physical_activity_level"
	ColStressLevel    = "stress_level"
	ColBMICategory    = "bmi_category"
	ColBloodPressure  = "blood_pressure"
	ColHeartRate      = "heart_rate"
	ColDailySteps     = "daily_steps"
	ColSleepDisorder  = "sleep_disorder"
)

// Columns lists the thirteen canonical columns in their conventional order.
var Columns = []string{
	ColPersonID,
	ColGender,
	ColAge,
	ColOccupation,
	ColSleepDuration,
	ColQualityOfSleep,
	ColPhysicalActive,
	ColStressLevel,
	ColBMICategory,
	ColBloodPressure,
	ColHeartRate,
	ColDailySteps,
	ColSleepDisorder,
}

// DefaultHeader is the display header written when a dataset has no header
// of its own (for example one built entirely in memory).
var DefaultHeader = []string{
	"Person ID",
	"Gender",
	"Age",
	"Occupation",
	"Sleep Duration",
	"Quality of Sleep",
	"Physical Activity Level",
	"Stress Level",
	"BMI Category",
	"Blood Pressure",
	"Heart Rate",
	"Daily Steps",
	"Sleep Disorder",
}

// Person is one fully populated record.
type Person struct {
	PersonID       int64
	Gender         string
	Age            int
	Occupation     string
	SleepDuration  float64
	QualityOfSleep int
	PhysicalActive int
	StressLevel    int
	BMICategory    string
	BloodPressure  string
	HeartRate      int
	DailySteps     int
	SleepDisorder  string
}

// Field returns the textual form of the canonical column col, as written to
// the table. Sleep duration always carries one decimal place.
func (p Person) Field(col string) string {
	switch col {
	case ColPersonID:
		return strconv.FormatInt(p.PersonID, 10)
	case ColGender:
		return p.Gender
	case ColAge:
		return strconv.Itoa(p.Age)
	case ColOccupation:
		return p.Occupation
	case ColSleepDuration:
		return strconv.FormatFloat(p.SleepDuration, 'f', 1, 64)
	case ColQualityOfSleep:
		return strconv.Itoa(p.QualityOfSleep)
	case ColPhysicalActive:
		return strconv.Itoa(p.PhysicalActive)
	case ColStressLevel:
		return strconv.Itoa(p.StressLevel)
	case ColBMICategory:
		return p.BMICategory
	case ColBloodPressure:
		return p.BloodPressure
	case ColHeartRate:
		return strconv.Itoa(p.HeartRate)
	case ColDailySteps:
		return strconv.Itoa(p.DailySteps)
	case ColSleepDisorder:
		return p.SleepDisorder
	default:
		return ""
	}
}

// Values returns the record as positional values in Columns order, typed for
// database inserts.
func (p Person) Values() []any {
	return []any{
		p.PersonID,
		p.Gender,
		int64(p.Age),
		p.Occupation,
		p.SleepDuration,
		int64(p.QualityOfSleep),
		int64(p.PhysicalActive),
		int64(p.StressLevel),
		p.BMICategory,
		p.BloodPressure,
		int64(p.HeartRate),
		int64(p.DailySteps),
		p.SleepDisorder,
	}
}
