package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sriram-PR/page-loader/pkg/models"
)

// JobStatus represents the current state of a download job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents a background page download
type Job struct {
	ID           string       `json:"id"`
	URL          string       `json:"url"`
	OutputDir    string       `json:"output_dir"`
	Status       JobStatus    `json:"status"`
	Stage        models.Stage `json:"stage,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at,omitempty"`
	AssetsDone   int          `json:"assets_done"`
	AssetsFailed int          `json:"assets_failed"`
	PagePath     string       `json:"page_path,omitempty"`
	ErrorType    string       `json:"error_type,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`

	// Internal fields
	seq    uint64 // Creation order
	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager tracks background download jobs. Getters return copies.
type JobManager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	nextSeq  uint64
	byTarget map[string]string // url + output dir -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:     make(map[string]*Job),
		byTarget: make(map[string]string),
	}
}

func targetKey(rawURL, outputDir string) string {
	return rawURL + "\x00" + outputDir
}

// CreateJob creates a job for rawURL into outputDir. If one is already active
// for the same target it is returned with created=false.
func (m *JobManager) CreateJob(rawURL, outputDir string) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := targetKey(rawURL, outputDir)
	if existingID, exists := m.byTarget[key]; exists {
		if existing := m.jobs[existingID]; existing != nil && !existing.Status.Terminal() {
			snapshot := *existing
			return &snapshot, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.New().String(),
		URL:       rawURL,
		OutputDir: outputDir,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		seq:       m.nextSeq,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.nextSeq++
	m.jobs[j.ID] = j
	m.byTarget[key] = j.ID

	snapshot := *j
	return &snapshot, true
}

// GetJob returns a copy of the job, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, exists := m.jobs[jobID]
	if !exists {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// update applies fn to an active job
func (m *JobManager) update(jobID string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, exists := m.jobs[jobID]; exists && !job.Status.Terminal() {
		fn(job)
	}
}

// SetRunning marks a pending job as running
func (m *JobManager) SetRunning(jobID string) {
	m.update(jobID, func(j *Job) { j.Status = JobStatusRunning })
}

// SetStage records the stage a running job has reached
func (m *JobManager) SetStage(jobID string, stage models.Stage) {
	m.update(jobID, func(j *Job) { j.Stage = stage })
}

// AssetFinished counts one asset result
func (m *JobManager) AssetFinished(jobID string, r models.DownloadResult) {
	m.update(jobID, func(j *Job) {
		j.AssetsDone++
		if !r.Succeeded() {
			j.AssetsFailed++
		}
	})
}

// Finish moves a job into a terminal status
func (m *JobManager) Finish(jobID string, status JobStatus, pagePath, errorType, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.Terminal() {
		return
	}
	job.Status = status
	job.CompletedAt = time.Now()
	job.PagePath = pagePath
	job.ErrorType = errorType
	job.ErrorMessage = errorMsg
	job.cancel()
	delete(m.byTarget, targetKey(job.URL, job.OutputDir))
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.Terminal() {
		return false
	}
	job.cancel()
	job.Status = JobStatusCancelled
	job.CompletedAt = time.Now()
	delete(m.byTarget, targetKey(job.URL, job.OutputDir))
	return true
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byTarget = make(map[string]string)
}

// ListJobs returns copies of all jobs, oldest first
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].seq < jobs[k].seq })
	return jobs
}

// GetContext returns the context for a job
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
