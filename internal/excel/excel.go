package excel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"lead-allocation/internal/models"
)

// Sheets keep the coordinate columns of the upload template:
// J (index 9) -> Lat, K (index 10) -> Lon.
const (
	latCol  = 9
	lonCol  = 10
	minCols = 11
)

func parseCoord(val string) (float64, error) {
	// Replace comma with dot for locales using decimal commas
	val = strings.TrimSpace(strings.ReplaceAll(val, ",", "."))
	if val == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.ParseFloat(val, 64)
}

func OpenFile(filename string) (*excelize.File, error) {
	return excelize.OpenFile(filename)
}

// dataRows yields every row after the header with valid coordinates.
func dataRows(f *excelize.File, sheetName string, fn func(row []string, loc models.GeoPoint, rowIndex int)) error {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if i == 0 {
			continue // Skip header
		}
		if len(row) < minCols {
			continue
		}
		lat, err1 := parseCoord(row[latCol])
		lon, err2 := parseCoord(row[lonCol])
		if err1 != nil || err2 != nil {
			continue // Skip invalid rows
		}
		fn(row, models.GeoPoint{Latitude: lat, Longitude: lon}, i+1)
	}
	return nil
}

// ReadAgents reads A=ID, B=Name plus the coordinate columns.
func ReadAgents(f *excelize.File, sheetName string) ([]models.Agent, error) {
	var agents []models.Agent
	err := dataRows(f, sheetName, func(row []string, loc models.GeoPoint, idx int) {
		agents = append(agents, models.Agent{
			ID:       row[0],
			Name:     row[1],
			Loc:      loc,
			RowIndex: idx,
		})
	})
	return agents, err
}

// ReadLeads reads A=Name, B=Location, C=Match Score plus the coordinate columns.
// Rows with a score outside 0..100 are skipped.
func ReadLeads(f *excelize.File, sheetName string) ([]models.Lead, error) {
	var leads []models.Lead
	err := dataRows(f, sheetName, func(row []string, loc models.GeoPoint, _ int) {
		score, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil || score < 0 || score > 100 {
			return
		}
		leads = append(leads, models.Lead{
			Name:       strings.TrimSpace(row[0]),
			Location:   row[1],
			Position:   loc,
			MatchScore: score,
		})
	})
	return leads, err
}

func writeSheet(path, sheetName string, headers []interface{}, n int, row func(i int) []interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, row(i)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}
	return f.SaveAs(path)
}

func WriteAllocations(path string, data []models.AllocationRow, sheetName string) error {
	headers := []interface{}{
		"Agent ID", "Agent Name", "Agent Lat", "Agent Lon",
		"Lead Name", "Lead Location", "Lead Lat", "Lead Lon",
		"Match Score", "Distance (m)",
	}
	return writeSheet(path, sheetName, headers, len(data), func(i int) []interface{} {
		r := data[i]
		return []interface{}{
			r.AgentID, r.AgentName, r.AgentLat, r.AgentLon,
			r.LeadName, r.LeadPlace, r.LeadLat, r.LeadLon,
			r.Score, r.Distance,
		}
	})
}

// WriteRanked exports a ranking in display order, flagging the best match.
func WriteRanked(path string, res models.RankedResult, sheetName string) error {
	headers := []interface{}{
		"Rank", "Name", "Location", "Lat", "Lon", "Match Score", "Distance (km)", "Best Match",
	}
	return writeSheet(path, sheetName, headers, len(res.OrderedLeads), func(i int) []interface{} {
		l := res.OrderedLeads[i]
		best := ""
		if res.BestMatch != nil && res.BestMatch.Name == l.Name {
			best = "yes"
		}
		return []interface{}{
			i + 1, l.Name, l.Location, l.Position.Latitude, l.Position.Longitude,
			l.MatchScore, l.DistanceKm(), best,
		}
	})
}
