package model

import (
	"encoding/json"
	"time"
)

// EmergencyType classifies an incident as reported by the intake side.
type EmergencyType string

const (
	EmergencyFire    EmergencyType = "Fire"
	EmergencyPolice  EmergencyType = "Police"
	EmergencyMedical EmergencyType = "Medical"
	EmergencyOther   EmergencyType = "Other"
)

// RequiredUnitType maps an emergency type to the unit type expected to
// handle it. Unknown types default to EMS.
func (t EmergencyType) RequiredUnitType() UnitType {
	switch t {
	case EmergencyFire:
		return UnitFire
	case EmergencyPolice:
		return UnitPolice
	default:
		return UnitEMS
	}
}

// Incident is an emergency event awaiting dispatch.
type Incident struct {
	ID             string        `json:"id"`
	Type           EmergencyType `json:"emergency_type"`
	Location       Location      `json:"location"`
	Severity       int           `json:"severity"`
	PeopleInvolved int           `json:"people_involved"`
	ActiveThreat   bool          `json:"active_threat"`
	Details        string        `json:"details"`
	ReportedAt     time.Time     `json:"reported_time"`

	// Geocoded is false when the intake payload carried no usable
	// coordinates. Such incidents skip the geo index and bid scoring
	// degrades to the basic path.
	Geocoded bool `json:"geocoded"`
}

// UnmarshalJSON accepts the location field in any of the intake shapes and
// records whether it resolved. A payload without coordinates still produces a
// valid incident in degraded mode.
func (i *Incident) UnmarshalJSON(data []byte) error {
	type alias Incident
	aux := struct {
		*alias
		Location json.RawMessage `json:"location"`
	}{alias: (*alias)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	loc, err := ParseLocationJSON(aux.Location)
	if err != nil || loc.IsZero() {
		i.Location = Location{}
		i.Geocoded = false
		return nil
	}
	i.Location = loc
	i.Geocoded = true
	return nil
}
