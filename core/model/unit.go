package model

// UnitType identifies the service branch of a mobile unit.
type UnitType string

const (
	UnitPolice UnitType = "Police"
	UnitFire   UnitType = "Fire"
	UnitEMS    UnitType = "EMS"
)

// UnitStatus is the operational state of a unit.
type UnitStatus string

const (
	StatusAvailable    UnitStatus = "Available"
	StatusDispatched   UnitStatus = "Dispatched"
	StatusEnRoute      UnitStatus = "EnRoute"
	StatusOnScene      UnitStatus = "OnScene"
	StatusOutOfService UnitStatus = "OutOfService"
)

// CanTransition reports whether moving from s to the given status is a legal
// step in the unit lifecycle. Any state may drop to OutOfService.
func (s UnitStatus) CanTransition(to UnitStatus) bool {
	if to == StatusOutOfService {
		return s != StatusOutOfService
	}
	switch s {
	case StatusAvailable:
		return to == StatusDispatched
	case StatusDispatched:
		return to == StatusEnRoute || to == StatusAvailable
	case StatusEnRoute:
		return to == StatusOnScene || to == StatusAvailable
	case StatusOnScene:
		return to == StatusAvailable
	case StatusOutOfService:
		return to == StatusAvailable
	}
	return false
}

// Unit is a mobile emergency-response resource.
type Unit struct {
	ID        string     `json:"unit_id"`
	Type      UnitType   `json:"unit_type"`
	Location  Location   `json:"location"`
	Status    UnitStatus `json:"status"`
	CrewSize  int        `json:"crew_size,omitempty"`
	Equipment []string   `json:"equipment,omitempty"`
}
