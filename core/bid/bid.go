package bid

import "time"

// SubScores breaks a composite bid score into its explainable components.
type SubScores struct {
	Distance  float64 `json:"distance"`
	ETA       float64 `json:"eta"`
	Traffic   float64 `json:"traffic"`
	Strategic float64 `json:"strategic"`
	Hazard    float64 `json:"hazard"`
	TypeMatch float64 `json:"type_match"`
}

// IntelligenceUsed records which collaborators contributed to the score.
type IntelligenceUsed struct {
	Strategic bool `json:"strategic"`
	Tactical  bool `json:"tactical"`
	Advisory  bool `json:"advisory"`
}

// Bid is a unit's scored offer to respond to an incident. Bids are ephemeral:
// created per solicitation and discarded once a winner is chosen or the
// collection window closes.
type Bid struct {
	IncidentID   string           `json:"incident_id"`
	UnitID       string           `json:"unit_id"`
	Score        float64          `json:"bid_score"`
	Sub          SubScores        `json:"sub_scores"`
	ETAMinutes   float64          `json:"eta_minutes"`
	DistanceKM   float64          `json:"distance_km"`
	Advisory     string           `json:"advisory,omitempty"`
	Intelligence IntelligenceUsed `json:"intelligence_used"`
	ReceivedAt   time.Time        `json:"received_at"`
}
