package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lead-allocation/internal/calculator"
	"lead-allocation/internal/catalog"
	"lead-allocation/internal/excel"
	"lead-allocation/internal/logger"
	"lead-allocation/internal/metrics"
	"lead-allocation/internal/models"
)

// === Job System ===

type JobStatus string

const (
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusError   JobStatus = "error"
)

const (
	agentsSheet = "Agents"
	leadsSheet  = "Leads"
	resultSheet = "Results"
)

type JobResult struct {
	Mode     string `json:"mode"`
	Rows     int    `json:"rows"`
	Sheet    string `json:"sheet"`
	Output   string `json:"output"`   // Full path
	Filename string `json:"filename"` // Just filename for download
}

type Job struct {
	ID        string
	Status    JobStatus
	Logs      []string
	Progress  int // 0-100
	Result    *JobResult
	Error     string
	Mutex     sync.RWMutex
	CreatedAt time.Time
}

type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

func (s *JobStore) New() *Job {
	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusRunning,
		Logs:      []string{},
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

func stamp(msg string) string {
	return fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
}

func (j *Job) Log(msg string) {
	j.Mutex.Lock()
	defer j.Mutex.Unlock()
	j.Logs = append(j.Logs, stamp(msg))
}

func (j *Job) SetProgress(current, total int, msg string) {
	j.Mutex.Lock()
	defer j.Mutex.Unlock()
	if total > 0 {
		j.Progress = int(float64(current) / float64(total) * 100)
	}
	if msg != "" {
		j.Logs = append(j.Logs, stamp(msg))
	}
}

// Snapshot copies the fields the status endpoints report.
func (j *Job) Snapshot() (status JobStatus, progress int, logs []string, result *JobResult, errMsg string) {
	j.Mutex.RLock()
	defer j.Mutex.RUnlock()
	logs = make([]string, len(j.Logs))
	copy(logs, j.Logs)
	return j.Status, j.Progress, logs, j.Result, j.Error
}

func (j *Job) fail(mode, msg string) {
	j.Mutex.Lock()
	j.Status = StatusError
	j.Error = msg
	j.Logs = append(j.Logs, "[ERROR] "+msg)
	j.Mutex.Unlock()
	metrics.JobsTotal.WithLabelValues(mode, string(StatusError)).Inc()
	logger.L().Error("job_failed", "id", j.ID, "mode", mode, "err", msg)
}

// processAllocation reads agents (and optionally leads) from the upload,
// allocates, and writes the result workbook into outputDir.
func processAllocation(job *Job, cat *catalog.Catalog, inputPath, outputDir, mode string, meters float64) {
	defer func() {
		if r := recover(); r != nil {
			job.fail(mode, fmt.Sprintf("Panic: %v", r))
		}
	}()

	job.Log(fmt.Sprintf("Processing file: %s", filepath.Base(inputPath)))

	f, err := excel.OpenFile(inputPath)
	if err != nil {
		job.fail(mode, fmt.Sprintf("Could not open workbook: %v", err))
		return
	}
	defer f.Close()

	job.Log("Reading Agents sheet...")
	agents, err := excel.ReadAgents(f, agentsSheet)
	if err != nil {
		job.fail(mode, fmt.Sprintf("Agents read error: %v", err))
		return
	}
	job.Log(fmt.Sprintf("%d agents read.", len(agents)))

	leads := cat.Leads()
	if idx, _ := f.GetSheetIndex(leadsSheet); idx >= 0 {
		job.Log("Reading Leads sheet...")
		leads, err = excel.ReadLeads(f, leadsSheet)
		if err != nil {
			job.fail(mode, fmt.Sprintf("Leads read error: %v", err))
			return
		}
	}
	job.Log(fmt.Sprintf("%d leads in scope.", len(leads)))

	progressCb := func(current, total int, msg string) {
		job.SetProgress(current, total, msg)
	}

	start := time.Now()
	var results []models.AllocationRow
	if mode == "nearest" {
		job.Log("Allocating nearest lead per agent...")
		results, err = calculator.AllocateNearest(agents, leads, progressCb, job.Log)
	} else {
		job.Log(fmt.Sprintf("Allocating leads within %.0fm...", meters))
		results, err = calculator.AllocateRadius(agents, leads, meters, progressCb, job.Log)
	}
	if err != nil {
		job.fail(mode, fmt.Sprintf("Allocation error: %v", err))
		return
	}
	job.Log(fmt.Sprintf("Allocation finished in %s", time.Since(start)))

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.xlsx", base, mode))

	job.Log("Writing result workbook...")
	if err := excel.WriteAllocations(outputPath, results, resultSheet); err != nil {
		job.fail(mode, fmt.Sprintf("Write error: %v", err))
		return
	}

	job.Mutex.Lock()
	job.Status = StatusDone
	job.Logs = append(job.Logs, stamp("Job completed."))
	job.Result = &JobResult{
		Mode:     mode,
		Rows:     len(results),
		Sheet:    resultSheet,
		Output:   outputPath,
		Filename: filepath.Base(outputPath),
	}
	job.Progress = 100
	job.Mutex.Unlock()
	metrics.JobsTotal.WithLabelValues(mode, string(StatusDone)).Inc()
}
