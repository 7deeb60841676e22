package bid

import (
	"strings"

	"github.com/firefly-dispatch/firefly/core/model"
)

// typeMatches maps unit type to emergency-keyword affinities. Positive values
// reward a natural fit, negative values discourage cross-dispatch. Unmatched
// pairs score zero.
var typeMatches = map[model.UnitType]map[string]float64{
	model.UnitPolice: {
		"crime":    20,
		"traffic":  15,
		"domestic": 15,
		"theft":    20,
		"assault":  20,
		"fire":     -10,
		"medical":  -5,
	},
	model.UnitFire: {
		"fire":    25,
		"rescue":  20,
		"hazmat":  20,
		"medical": 10,
		"crime":   -5,
		"traffic": 5,
	},
	model.UnitEMS: {
		"medical": 25,
		"trauma":  20,
		"fire":    10,
		"rescue":  15,
		"crime":   5,
		"traffic": 10,
	},
}

// TypeMatchScore returns the affinity bonus for a unit type responding to the
// given emergency type.
func TypeMatchScore(unit model.UnitType, emergency model.EmergencyType) float64 {
	return typeMatches[unit][strings.ToLower(string(emergency))]
}
