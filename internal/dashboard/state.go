// Package dashboard holds per-session ranking state as immutable snapshots.
package dashboard

import (
	"time"

	"lead-allocation/internal/calculator"
	"lead-allocation/internal/catalog"
	"lead-allocation/internal/metrics"
	"lead-allocation/internal/models"
)

// State is never modified in place; every event returns the next snapshot
// with the ranking fully recomputed.
type State struct {
	catalog   *catalog.Catalog
	threshold int

	Reference *models.GeoPoint         `json:"reference"`
	Params    models.RankingParameters `json:"params"`
	Result    models.RankedResult      `json:"result"`
	Nearest   *models.Lead             `json:"nearest"`
	Declined  []models.Lead            `json:"declined"`
}

// New starts sorted by distance with the filter off. threshold is the
// minimum score used once the filter is switched on.
func New(c *catalog.Catalog, threshold int) State {
	return State{
		catalog:   c,
		threshold: threshold,
		Params:    models.RankingParameters{SortBy: models.SortDistance},
		Result:    models.RankedResult{OrderedLeads: []models.Lead{}},
		Declined:  []models.Lead{},
	}
}

func (s State) Ready() bool { return s.Reference != nil }

func (s State) FilterOn() bool { return s.Params.FilterMinScore != nil }

func (s State) SetReference(p models.GeoPoint) State {
	s.Reference = &p
	return s.recompute()
}

func (s State) ToggleSort() State {
	if s.Params.SortBy == models.SortScore {
		s.Params.SortBy = models.SortDistance
	} else {
		s.Params.SortBy = models.SortScore
	}
	return s.recompute()
}

func (s State) ToggleFilter() State {
	if s.FilterOn() {
		s.Params.FilterMinScore = nil
	} else {
		t := s.threshold
		s.Params.FilterMinScore = &t
	}
	return s.recompute()
}

// Decline records a rejected lead. The ranking is not affected.
func (s State) Decline(l models.Lead) State {
	declined := make([]models.Lead, len(s.Declined), len(s.Declined)+1)
	copy(declined, s.Declined)
	s.Declined = append(declined, l)
	return s
}

func (s State) WithParams(p models.RankingParameters) State {
	if p.FilterMinScore != nil {
		t := *p.FilterMinScore
		p.FilterMinScore = &t
	}
	s.Params = p
	return s.recompute()
}

// recompute is a no-op until a reference point exists.
func (s State) recompute() State {
	if s.Reference == nil {
		return s
	}
	leads := s.catalog.Leads()

	start := time.Now()
	s.Result = calculator.Rank(leads, *s.Reference, s.Params)
	metrics.RankDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RankRequestsTotal.WithLabelValues(string(s.Params.SortBy)).Inc()
	if len(s.Result.OrderedLeads) == 0 {
		metrics.EmptyRankingsTotal.Inc()
	}

	s.Nearest = nil
	if n, ok := calculator.Nearest(leads, *s.Reference); ok {
		s.Nearest = &n
	}
	return s
}
