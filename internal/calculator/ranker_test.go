package calculator

import (
	"reflect"
	"testing"

	"lead-allocation/internal/models"
)

// one degree of latitude is ~111.195 km on a 6371 km sphere
func kmNorth(km float64) models.GeoPoint {
	return models.GeoPoint{Latitude: km / 111.19492664455873}
}

func intPtr(v int) *int { return &v }

func names(leads []models.Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.Name
	}
	return out
}

func demoCatalog() []models.Lead {
	return []models.Lead{
		{Name: "Alice", Location: "A", Position: kmNorth(0.1), MatchScore: 92},
		{Name: "Bob", Location: "B", Position: kmNorth(5), MatchScore: 78},
		{Name: "Carol", Location: "C", Position: kmNorth(2), MatchScore: 85},
	}
}

func TestRankEndToEndByScore(t *testing.T) {
	res := Rank(demoCatalog(), models.GeoPoint{}, models.RankingParameters{SortBy: models.SortScore})

	if got := names(res.OrderedLeads); !reflect.DeepEqual(got, []string{"Alice", "Carol", "Bob"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if res.BestMatch == nil || res.BestMatch.Name != "Alice" {
		t.Fatalf("expected best match Alice, got %+v", res.BestMatch)
	}
	if d := res.OrderedLeads[0].DistanceKm(); d < 0.09 || d > 0.11 {
		t.Errorf("expected Alice ~0.1 km away, got %v", d)
	}
}

func TestRankByDistance(t *testing.T) {
	res := Rank(demoCatalog(), models.GeoPoint{}, models.RankingParameters{SortBy: models.SortDistance})

	if got := names(res.OrderedLeads); !reflect.DeepEqual(got, []string{"Alice", "Carol", "Bob"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	for i := 1; i < len(res.OrderedLeads); i++ {
		if res.OrderedLeads[i-1].DistanceKm() > res.OrderedLeads[i].DistanceKm() {
			t.Errorf("distance decreases at %d", i)
		}
	}
}

func TestRankFilterIsStrict(t *testing.T) {
	catalog := demoCatalog()
	tests := []struct {
		threshold int
		want      []string
	}{
		{0, []string{"Alice", "Bob", "Carol"}},
		{78, []string{"Alice", "Carol"}},
		{85, []string{"Alice"}},
		{92, []string{}},
	}
	for _, tt := range tests {
		res := Rank(catalog, models.GeoPoint{}, models.RankingParameters{
			SortBy:         models.SortDistance,
			FilterMinScore: intPtr(tt.threshold),
		})
		got := map[string]bool{}
		for _, l := range res.OrderedLeads {
			if l.MatchScore <= tt.threshold {
				t.Errorf("threshold %d: %s (score %d) should be excluded", tt.threshold, l.Name, l.MatchScore)
			}
			got[l.Name] = true
		}
		if len(got) != len(tt.want) {
			t.Errorf("threshold %d: expected %v, got %v", tt.threshold, tt.want, names(res.OrderedLeads))
		}
		for _, n := range tt.want {
			if !got[n] {
				t.Errorf("threshold %d: missing %s", tt.threshold, n)
			}
		}
	}
}

func TestRankFilteredToEmpty(t *testing.T) {
	res := Rank(demoCatalog(), models.GeoPoint{}, models.RankingParameters{FilterMinScore: intPtr(100)})
	if len(res.OrderedLeads) != 0 || res.BestMatch != nil {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestRankStableOnEqualKeys(t *testing.T) {
	catalog := []models.Lead{
		{Name: "first", Position: kmNorth(3), MatchScore: 80},
		{Name: "second", Position: kmNorth(1), MatchScore: 80},
		{Name: "third", Position: kmNorth(3), MatchScore: 80},
		{Name: "fourth", Position: kmNorth(2), MatchScore: 90},
	}

	byScore := Rank(catalog, models.GeoPoint{}, models.RankingParameters{SortBy: models.SortScore})
	if got := names(byScore.OrderedLeads); !reflect.DeepEqual(got, []string{"fourth", "first", "second", "third"}) {
		t.Errorf("score ties lost catalog order: %v", got)
	}

	byDistance := Rank(catalog, models.GeoPoint{}, models.RankingParameters{SortBy: models.SortDistance})
	if got := names(byDistance.OrderedLeads); !reflect.DeepEqual(got, []string{"second", "fourth", "first", "third"}) {
		t.Errorf("distance ties lost catalog order: %v", got)
	}
}

func TestBestMatchTieBreaksOnDistance(t *testing.T) {
	catalog := []models.Lead{
		{Name: "far", Position: kmNorth(10), MatchScore: 90},
		{Name: "near", Position: kmNorth(1), MatchScore: 90},
		{Name: "low", Position: kmNorth(0.5), MatchScore: 60},
	}
	for _, sortBy := range []models.SortKey{models.SortScore, models.SortDistance} {
		res := Rank(catalog, models.GeoPoint{}, models.RankingParameters{SortBy: sortBy})
		if res.BestMatch == nil || res.BestMatch.Name != "near" {
			t.Errorf("sort %s: expected near, got %+v", sortBy, res.BestMatch)
		}
	}
}

func TestRankEmptyCatalog(t *testing.T) {
	res := Rank(nil, models.GeoPoint{}, models.RankingParameters{SortBy: models.SortScore})
	if len(res.OrderedLeads) != 0 {
		t.Errorf("expected no leads, got %d", len(res.OrderedLeads))
	}
	if res.BestMatch != nil {
		t.Errorf("expected no best match, got %+v", res.BestMatch)
	}
}

func TestRankDoesNotMutateCatalog(t *testing.T) {
	catalog := demoCatalog()
	before := demoCatalog()
	Rank(catalog, models.GeoPoint{}, models.RankingParameters{SortBy: models.SortScore, FilterMinScore: intPtr(80)})
	if !reflect.DeepEqual(catalog, before) {
		t.Errorf("catalog mutated: %+v", catalog)
	}
}

func TestRankRecomputesOnNewReference(t *testing.T) {
	catalog := demoCatalog()
	params := models.RankingParameters{SortBy: models.SortScore}

	first := Rank(catalog, models.GeoPoint{}, params)
	ref := kmNorth(5)
	second := Rank(catalog, ref, params)

	for i, l := range second.OrderedLeads {
		want := DistanceKm(ref, l.Position)
		if l.DistanceKm() != want {
			t.Errorf("%s: stale distance %v, want %v", l.Name, l.DistanceKm(), want)
		}
		if l.DistanceKm() == first.OrderedLeads[i].DistanceKm() {
			t.Errorf("%s: distance unchanged after moving reference", l.Name)
		}
	}
}

func TestNearest(t *testing.T) {
	l, ok := Nearest(demoCatalog(), kmNorth(4))
	if !ok || l.Name != "Bob" {
		t.Fatalf("expected Bob, got %+v", l)
	}
	if l.Distance == nil {
		t.Fatal("expected distance to be set")
	}

	if _, ok := Nearest(nil, models.GeoPoint{}); ok {
		t.Error("expected no lead from empty catalog")
	}
}

func TestNearestFirstSeenWinsOnTie(t *testing.T) {
	catalog := []models.Lead{
		{Name: "north", Position: models.GeoPoint{Latitude: 1}},
		{Name: "south", Position: models.GeoPoint{Latitude: -1}},
	}
	l, _ := Nearest(catalog, models.GeoPoint{})
	if l.Name != "north" {
		t.Errorf("expected north, got %s", l.Name)
	}
}

func TestNearestMatchesRankHead(t *testing.T) {
	ref := models.GeoPoint{Latitude: 19.2, Longitude: 73.0}
	catalog := []models.Lead{
		{Name: "Alice Johnson", Position: mumbai, MatchScore: 92},
		{Name: "Bob Singh", Position: delhi, MatchScore: 78},
		{Name: "Carol Verma", Position: bangalore, MatchScore: 85},
	}
	n, _ := Nearest(catalog, ref)
	head := Rank(catalog, ref, models.RankingParameters{SortBy: models.SortDistance}).OrderedLeads[0]
	if n.Name != head.Name || n.DistanceKm() != head.DistanceKm() {
		t.Errorf("nearest %+v differs from rank head %+v", n, head)
	}
}
