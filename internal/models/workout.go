package models

// StatisticKind is the slot a WorkoutStatistics child fills on its workout.
type StatisticKind int

const (
	StatisticUnclassified StatisticKind = iota
	StatisticDistance
	StatisticEnergy
)

func (k StatisticKind) String() string {
	switch k {
	case StatisticDistance:
		return "distance"
	case StatisticEnergy:
		return "energy"
	default:
		return "unclassified"
	}
}

var workoutStatistics = map[string]StatisticKind{
	"HKQuantityTypeIdentifierDistanceWalkingRunning":     StatisticDistance,
	"HKQuantityTypeIdentifierDistanceCycling":            StatisticDistance,
	"HKQuantityTypeIdentifierDistanceSwimming":           StatisticDistance,
	"HKQuantityTypeIdentifierDistanceWheelchair":         StatisticDistance,
	"HKQuantityTypeIdentifierDistanceDownhillSnowSports": StatisticDistance,
	"HKQuantityTypeIdentifierDistanceRowing":             StatisticDistance,
	"HKQuantityTypeIdentifierDistancePaddleSports":       StatisticDistance,
	"HKQuantityTypeIdentifierDistanceCrossCountrySkiing": StatisticDistance,
	"HKQuantityTypeIdentifierDistanceSkatingSports":      StatisticDistance,
	"HKQuantityTypeIdentifierActiveEnergyBurned":         StatisticEnergy,
}

// ClassifyStatistic maps a WorkoutStatistics type label to the workout field it
// populates. Labels outside the known set are StatisticUnclassified, including
// BasalEnergyBurned, which would otherwise overwrite the active energy total.
func ClassifyStatistic(label string) StatisticKind {
	return workoutStatistics[label]
}
