// Package catalog holds the read-only lead catalog shared by every ranking session.
package catalog

import (
	"errors"
	"fmt"

	"lead-allocation/internal/excel"
	"lead-allocation/internal/models"
)

var ErrDuplicateLead = errors.New("duplicate lead name")

// Catalog is immutable after construction and safe for concurrent reads.
type Catalog struct {
	leads  []models.Lead
	byName map[string]int
}

func New(leads []models.Lead) (*Catalog, error) {
	c := &Catalog{
		leads:  make([]models.Lead, len(leads)),
		byName: make(map[string]int, len(leads)),
	}
	for i, l := range leads {
		if _, ok := c.byName[l.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLead, l.Name)
		}
		l.Distance = nil
		c.leads[i] = l
		c.byName[l.Name] = i
	}
	return c, nil
}

// Seed returns the demo catalog the app ships with.
func Seed() *Catalog {
	c, _ := New([]models.Lead{
		{Name: "Alice Johnson", Location: "Mumbai", Position: models.GeoPoint{Latitude: 19.0760, Longitude: 72.8777}, MatchScore: 92},
		{Name: "Bob Singh", Location: "Delhi", Position: models.GeoPoint{Latitude: 28.6139, Longitude: 77.2090}, MatchScore: 78},
		{Name: "Carol Verma", Location: "Bangalore", Position: models.GeoPoint{Latitude: 12.9716, Longitude: 77.5946}, MatchScore: 85},
		{Name: "Priya Sharma", Location: "Pune", Position: models.GeoPoint{Latitude: 18.5204, Longitude: 73.8567}, MatchScore: 88},
		{Name: "Ravi Patel", Location: "Ahmedabad", Position: models.GeoPoint{Latitude: 23.0225, Longitude: 72.5714}, MatchScore: 65},
	})
	return c
}

// FromExcel loads the lead sheet of an xlsx workbook.
func FromExcel(path, sheet string) (*Catalog, error) {
	f, err := excel.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	leads, err := excel.ReadLeads(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s sheet: %w", sheet, err)
	}
	return New(leads)
}

// Leads returns a copy callers may reorder freely.
func (c *Catalog) Leads() []models.Lead {
	out := make([]models.Lead, len(c.leads))
	copy(out, c.leads)
	return out
}

func (c *Catalog) Find(name string) (models.Lead, bool) {
	i, ok := c.byName[name]
	if !ok {
		return models.Lead{}, false
	}
	return c.leads[i], true
}

func (c *Catalog) Len() int { return len(c.leads) }
