package calculator

import (
	"sort"

	"lead-allocation/internal/models"
)

// Rank annotates every lead with its distance from ref, applies the score
// filter, sorts, and picks the best match. The catalog is not modified.
func Rank(catalog []models.Lead, ref models.GeoPoint, params models.RankingParameters) models.RankedResult {
	leads := make([]models.Lead, 0, len(catalog))
	for _, l := range catalog {
		if params.FilterMinScore != nil && l.MatchScore <= *params.FilterMinScore {
			continue
		}
		leads = append(leads, l.WithDistance(DistanceKm(ref, l.Position)))
	}

	if params.SortBy == models.SortScore {
		sort.SliceStable(leads, func(i, j int) bool {
			return leads[i].MatchScore > leads[j].MatchScore
		})
	} else {
		sort.SliceStable(leads, func(i, j int) bool {
			return leads[i].DistanceKm() < leads[j].DistanceKm()
		})
	}

	return models.RankedResult{
		OrderedLeads: leads,
		BestMatch:    bestMatch(leads),
	}
}

// highest score wins, equal scores go to the closer lead
func bestMatch(leads []models.Lead) *models.Lead {
	if len(leads) == 0 {
		return nil
	}
	best := leads[0]
	for _, l := range leads[1:] {
		if l.MatchScore > best.MatchScore ||
			(l.MatchScore == best.MatchScore && l.DistanceKm() < best.DistanceKm()) {
			best = l
		}
	}
	return &best
}

// Nearest returns the lead closest to ref with its distance set.
// On exact ties the first lead in catalog order wins.
func Nearest(catalog []models.Lead, ref models.GeoPoint) (models.Lead, bool) {
	idx := -1
	var minDist float64
	for i, l := range catalog {
		d := DistanceKm(ref, l.Position)
		if idx < 0 || d < minDist {
			idx = i
			minDist = d
		}
	}
	if idx < 0 {
		return models.Lead{}, false
	}
	return catalog[idx].WithDistance(minDist), true
}
