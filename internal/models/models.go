package models

import "time"

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Lead is a prospective client. Name is unique within a catalog.
// Distance is kilometers from the current reference point and stays nil
// until the lead has been ranked.
type Lead struct {
	Name       string   `json:"name"`
	Location   string   `json:"location"`
	Position   GeoPoint `json:"position"`
	MatchScore int      `json:"match_score"`
	Distance   *float64 `json:"distance,omitempty"`
}

// WithDistance returns a copy of the lead carrying d.
func (l Lead) WithDistance(d float64) Lead {
	l.Distance = &d
	return l
}

// DistanceKm returns the populated distance or 0.
func (l Lead) DistanceKm() float64 {
	if l.Distance == nil {
		return 0
	}
	return *l.Distance
}

type SortKey string

const (
	SortDistance SortKey = "distance"
	SortScore    SortKey = "score"
)

type RankingParameters struct {
	SortBy         SortKey `json:"sort_by"`
	FilterMinScore *int    `json:"filter_min_score,omitempty"`
}

type RankedResult struct {
	OrderedLeads []Lead `json:"ordered_leads"`
	BestMatch    *Lead  `json:"best_match"`
}

// Agent is a field sales agent row used by the batch allocation job.
type Agent struct {
	ID       string
	Name     string
	Loc      GeoPoint
	RowIndex int
}

// AllocationRow is one exported agent/lead pair. Distance is in meters.
type AllocationRow struct {
	AgentID   string
	AgentName string
	AgentLat  float64
	AgentLon  float64
	LeadName  string
	LeadPlace string
	LeadLat   float64
	LeadLon   float64
	Score     int
	Distance  int
}

type Field struct {
	Label      string `json:"label"`
	Value      string `json:"value"`
	Confidence int    `json:"confidence"`
}

type OCRRecord struct {
	ID       string    `json:"id"`
	ImageURI string    `json:"image_uri,omitempty"`
	Fields   []Field   `json:"fields"`
	SavedAt  time.Time `json:"saved_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	Lead      Lead      `json:"lead"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseSortKey maps "distance" / "score" to a SortKey. Anything else falls back to distance.
func ParseSortKey(s string) SortKey {
	if SortKey(s) == SortScore {
		return SortScore
	}
	return SortDistance
}
