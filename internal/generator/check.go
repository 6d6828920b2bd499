package generator

import (
	"fmt"
	"math"
	"slices"

	"sleepgen/internal/dataset"
)

var (
	genders   = []string{Male, Female}
	bmis      = []string{BMINormal, BMIOverweight, BMIObese}
	disorders = []string{DisorderNone, DisorderInsomnia, DisorderApnea}
)

// check verifies p against every declared bound and enumeration. It is the
// last step of Record; a failure means a table or branch is misconfigured.
func (g *Generator) check(p dataset.Person) error {
	if !slices.Contains(genders, p.Gender) {
		return fmt.Errorf("gender %q not in %v", p.Gender, genders)
	}
	ages := intRange{MinAgeFemale, MaxAgeFemale}
	if p.Gender == Male {
		ages = intRange{MinAgeMale, MaxAgeMale}
	}
	if !ages.contains(p.Age) {
		return fmt.Errorf("age %d outside [%d,%d]", p.Age, ages.lo, ages.hi)
	}
	if !g.known[p.Occupation] {
		return fmt.Errorf("occupation %q not in base distribution", p.Occupation)
	}
	if math.IsNaN(p.SleepDuration) || p.SleepDuration < MinSleep || p.SleepDuration > MaxSleep {
		return fmt.Errorf("sleep_duration %v outside [%v,%v]", p.SleepDuration, MinSleep, MaxSleep)
	}
	if !(intRange{MinQuality, MaxQuality}).contains(p.QualityOfSleep) {
		return fmt.Errorf("quality_of_sleep %d outside [%d,%d]", p.QualityOfSleep, MinQuality, MaxQuality)
	}
	if r := activityFor(p.Occupation); !r.contains(p.PhysicalActive) {
		return fmt.Errorf("physical_activity_level %d outside [%d,%d]", p.PhysicalActive, r.lo, r.hi)
	}
	if !(intRange{MinStress, MaxStress}).contains(p.StressLevel) {
		return fmt.Errorf("stress_level %d outside [%d,%d]", p.StressLevel, MinStress, MaxStress)
	}
	if !slices.Contains(bmis, p.BMICategory) {
		return fmt.Errorf("bmi_category %q not in %v", p.BMICategory, bmis)
	}
	if set := pressureFor(p.BMICategory, p.StressLevel); !slices.Contains(set, p.BloodPressure) {
		return fmt.Errorf("blood_pressure %q not in %v", p.BloodPressure, set)
	}
	if r := heartRateFor(p.PhysicalActive, p.BMICategory); !r.contains(p.HeartRate) {
		return fmt.Errorf("heart_rate %d outside [%d,%d]", p.HeartRate, r.lo, r.hi)
	}
	if r := stepsFor(p.Occupation); !r.contains(p.DailySteps) {
		return fmt.Errorf("daily_steps %d outside [%d,%d]", p.DailySteps, r.lo, r.hi)
	}
	if !slices.Contains(disorders, p.SleepDisorder) {
		return fmt.Errorf("sleep_disorder %q not in %v", p.SleepDisorder, disorders)
	}
	return nil
}
