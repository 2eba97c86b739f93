package calculator

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"lead-allocation/internal/models"
)

type ProgressCallback func(current, total int, msg string)
type LoggerCallback func(msg string)

var ErrEmptyInput = errors.New("empty input lists")

func allocationRow(a models.Agent, l models.Lead, meters float64) models.AllocationRow {
	return models.AllocationRow{
		AgentID:   a.ID,
		AgentName: a.Name,
		AgentLat:  a.Loc.Latitude,
		AgentLon:  a.Loc.Longitude,
		LeadName:  l.Name,
		LeadPlace: l.Location,
		LeadLat:   l.Position.Latitude,
		LeadLon:   l.Position.Longitude,
		Score:     l.MatchScore,
		Distance:  int(math.Round(meters)),
	}
}

func chunks(total int) (int, int) {
	numCPU := runtime.NumCPU()
	if numCPU < 1 {
		numCPU = 1
	}
	return numCPU, (total + numCPU - 1) / numCPU
}

// AllocateNearest assigns every agent its nearest lead. Rows keep agent order.
func AllocateNearest(agents []models.Agent, leads []models.Lead, onProgress ProgressCallback, logger LoggerCallback) ([]models.AllocationRow, error) {
	if len(agents) == 0 || len(leads) == 0 {
		return nil, ErrEmptyInput
	}

	total := len(agents)
	results := make([]models.AllocationRow, total)
	numCPU, chunkSize := chunks(total)

	var wg sync.WaitGroup
	var processedCount int64

	logger(fmt.Sprintf("Starting parallel allocation with %d CPUs, %d agents, %d leads", numCPU, len(agents), len(leads)))

	for i := 0; i < numCPU; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if start >= total {
			break
		}
		if end > total {
			end = total
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()

			for idx := s; idx < e; idx++ {
				agent := agents[idx]
				nearest, _ := Nearest(leads, agent.Loc)
				results[idx] = allocationRow(agent, nearest, nearest.DistanceKm()*1000)

				count := atomic.AddInt64(&processedCount, 1)
				if count%500 == 0 && onProgress != nil {
					onProgress(int(count), total, "")
				}
			}
		}(start, end)
	}

	wg.Wait()

	if onProgress != nil {
		onProgress(total, total, "")
	}

	logger("Allocation completed.")
	return results, nil
}

// AllocateRadius returns every (agent, lead) pair no more than radiusMeters apart.
func AllocateRadius(agents []models.Agent, leads []models.Lead, radiusMeters float64, onProgress ProgressCallback, logger LoggerCallback) ([]models.AllocationRow, error) {
	if len(agents) == 0 || len(leads) == 0 {
		return nil, ErrEmptyInput
	}

	total := len(agents)
	numCPU, chunkSize := chunks(total)

	resultChan := make(chan []models.AllocationRow, numCPU)
	var wg sync.WaitGroup

	logger(fmt.Sprintf("Starting radius search (%.0fm) with %d CPUs", radiusMeters, numCPU))

	for i := 0; i < numCPU; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if start >= total {
			break
		}
		if end > total {
			end = total
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			var localRes []models.AllocationRow

			for idx := s; idx < e; idx++ {
				a := agents[idx]
				for _, l := range leads {
					d := Haversine(a.Loc.Latitude, a.Loc.Longitude, l.Position.Latitude, l.Position.Longitude)
					if d <= radiusMeters {
						localRes = append(localRes, allocationRow(a, l, d))
					}
				}
			}
			resultChan <- localRes
		}(start, end)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var allResults []models.AllocationRow
	processedChunks := 0

	for resChunk := range resultChan {
		allResults = append(allResults, resChunk...)
		processedChunks++
		if onProgress != nil {
			done := processedChunks * chunkSize
			if done > total {
				done = total
			}
			onProgress(done, total, "")
		}
	}

	logger("Radius allocation completed.")
	return allResults, nil
}
