package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/page-loader/pkg/models"
)

func createTestJob(t *testing.T, jm *JobManager, rawURL string) *Job {
	t.Helper()
	job, created := jm.CreateJob(rawURL, "/out")
	require.True(t, created)
	require.NotNil(t, job)
	return job
}

func TestNewJobManager(t *testing.T) {
	jm := NewJobManager()
	require.NotNil(t, jm)
	assert.Empty(t, jm.ListJobs())
}

func TestCreateJob(t *testing.T) {
	t.Run("new job fields correct", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "https://ru.hexlet.io/courses")

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "https://ru.hexlet.io/courses", job.URL)
		assert.Equal(t, "/out", job.OutputDir)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.False(t, job.StartedAt.IsZero())
		assert.True(t, job.CompletedAt.IsZero())
		assert.Zero(t, job.AssetsDone)
		assert.Empty(t, job.ErrorMessage)
	})

	t.Run("duplicate active target returns same job", func(t *testing.T) {
		jm := NewJobManager()
		job1 := createTestJob(t, jm, "https://a.test/")
		job2, created := jm.CreateJob("https://a.test/", "/out")
		assert.False(t, created)
		assert.Equal(t, job1.ID, job2.ID)
	})

	t.Run("same url into another dir is a new job", func(t *testing.T) {
		jm := NewJobManager()
		job1 := createTestJob(t, jm, "https://a.test/")
		job2, created := jm.CreateJob("https://a.test/", "/elsewhere")
		assert.True(t, created)
		assert.NotEqual(t, job1.ID, job2.ID)
	})

	t.Run("new job allowed after completion", func(t *testing.T) {
		jm := NewJobManager()
		job1 := createTestJob(t, jm, "https://a.test/")
		jm.Finish(job1.ID, JobStatusCompleted, "/out/a-test.html", "", "")

		job2 := createTestJob(t, jm, "https://a.test/")
		assert.NotEqual(t, job1.ID, job2.ID)
	})
}

func TestGetJob(t *testing.T) {
	jm := NewJobManager()

	t.Run("exists returns copy", func(t *testing.T) {
		job := createTestJob(t, jm, "https://a.test/")
		got := jm.GetJob(job.ID)
		require.NotNil(t, got)
		assert.Equal(t, job.ID, got.ID)

		got.Status = JobStatusFailed
		assert.Equal(t, JobStatusPending, jm.GetJob(job.ID).Status, "callers cannot mutate the tracked job")
	})

	t.Run("missing returns nil", func(t *testing.T) {
		assert.Nil(t, jm.GetJob("nonexistent-id"))
	})
}

func TestProgressUpdates(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "https://a.test/")

	jm.SetRunning(job.ID)
	jm.SetStage(job.ID, models.StageDownloadingAssets)
	jm.AssetFinished(job.ID, models.DownloadResult{Status: models.AssetStatusSuccess})
	jm.AssetFinished(job.ID, models.DownloadResult{Status: models.AssetStatusFailure})
	jm.AssetFinished(job.ID, models.DownloadResult{Status: models.AssetStatusSuccess})

	got := jm.GetJob(job.ID)
	assert.Equal(t, JobStatusRunning, got.Status)
	assert.Equal(t, models.StageDownloadingAssets, got.Stage)
	assert.Equal(t, 3, got.AssetsDone)
	assert.Equal(t, 1, got.AssetsFailed)

	t.Run("nonexistent is no-op", func(t *testing.T) {
		jm.SetRunning("fake-id")
		jm.AssetFinished("fake-id", models.DownloadResult{})
	})
}

func TestFinish(t *testing.T) {
	t.Run("failed sets error and cancels context", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "https://a.test/")
		jm.SetRunning(job.ID)

		jm.Finish(job.ID, JobStatusFailed, "", "HTTP_404", "page not found")

		got := jm.GetJob(job.ID)
		assert.Equal(t, JobStatusFailed, got.Status)
		assert.Equal(t, "HTTP_404", got.ErrorType)
		assert.Equal(t, "page not found", got.ErrorMessage)
		assert.False(t, got.CompletedAt.IsZero())
		assert.Error(t, jm.GetContext(job.ID).Err())
	})

	t.Run("terminal status is final", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "https://a.test/")
		require.True(t, jm.CancelJob(job.ID))

		jm.Finish(job.ID, JobStatusCompleted, "/out/page.html", "", "")
		jm.AssetFinished(job.ID, models.DownloadResult{Status: models.AssetStatusSuccess})

		got := jm.GetJob(job.ID)
		assert.Equal(t, JobStatusCancelled, got.Status)
		assert.Empty(t, got.PagePath)
		assert.Zero(t, got.AssetsDone)
	})
}

func TestCancelJob(t *testing.T) {
	t.Run("running job cancelled", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "https://a.test/")
		jm.SetRunning(job.ID)

		assert.True(t, jm.CancelJob(job.ID))

		got := jm.GetJob(job.ID)
		assert.Equal(t, JobStatusCancelled, got.Status)
		assert.False(t, got.CompletedAt.IsZero())
		assert.True(t, errors.Is(jm.GetContext(job.ID).Err(), context.Canceled))
	})

	t.Run("completed job not cancellable", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "https://a.test/")
		jm.Finish(job.ID, JobStatusCompleted, "", "", "")
		assert.False(t, jm.CancelJob(job.ID))
	})

	t.Run("nonexistent returns false", func(t *testing.T) {
		assert.False(t, NewJobManager().CancelJob("nope"))
	})
}

func TestCancelAll(t *testing.T) {
	jm := NewJobManager()
	job1 := createTestJob(t, jm, "https://a.test/")
	job2 := createTestJob(t, jm, "https://b.test/")
	job3 := createTestJob(t, jm, "https://c.test/")
	jm.Finish(job3.ID, JobStatusCompleted, "", "", "")

	jm.CancelAll()

	assert.Equal(t, JobStatusCancelled, jm.GetJob(job1.ID).Status)
	assert.Equal(t, JobStatusCancelled, jm.GetJob(job2.ID).Status)
	assert.Equal(t, JobStatusCompleted, jm.GetJob(job3.ID).Status)

	newJob, created := jm.CreateJob("https://a.test/", "/out")
	assert.True(t, created)
	assert.NotEqual(t, job1.ID, newJob.ID)
}

func TestListJobs_OldestFirst(t *testing.T) {
	jm := NewJobManager()
	job1 := createTestJob(t, jm, "https://a.test/")
	job2 := createTestJob(t, jm, "https://b.test/")
	job3 := createTestJob(t, jm, "https://c.test/")

	jobs := jm.ListJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, job1.ID, jobs[0].ID)
	assert.Equal(t, job2.ID, jobs[1].ID)
	assert.Equal(t, job3.ID, jobs[2].ID)
}

func TestGetContext(t *testing.T) {
	t.Run("valid job returns live context", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "https://a.test/")
		assert.NoError(t, jm.GetContext(job.ID).Err())
	})

	t.Run("nonexistent returns background context", func(t *testing.T) {
		assert.Equal(t, context.Background(), NewJobManager().GetContext("nope"))
	})
}
