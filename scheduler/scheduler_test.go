package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/stupid-simple/assetpack/scheduler"
)

type MockBundleJob struct {
	mock.Mock
}

func (m *MockBundleJob) Run() {
	m.Called()
}

func newScheduler(t *testing.T) *scheduler.Scheduler {
	return scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: zerolog.New(zerolog.NewTestWriter(t)),
	})
}

func TestNewScheduler(t *testing.T) {
	s := newScheduler(t)
	assert.NotNil(t, s, "Scheduler should not be nil")
	assert.Zero(t, s.Len())
}

func TestScheduler_AddBundleJob(t *testing.T) {
	s := newScheduler(t)
	mockJob := new(MockBundleJob)

	err := s.AddBundleJob(context.Background(), "* * * * *", mockJob)
	assert.NoError(t, err, "Should add job without error")
	assert.Equal(t, 1, s.Len())

	// Test with invalid schedule.
	err = s.AddBundleJob(context.Background(), "invalid-schedule", mockJob)
	assert.Error(t, err, "Should return error with invalid schedule")
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_StartStop(t *testing.T) {
	s := newScheduler(t)

	mockJob := new(MockBundleJob)
	mockJob.On("Run").Return()

	err := s.AddBundleJob(context.Background(), "* * * * *", mockJob)
	assert.NoError(t, err)

	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()
}

func TestScheduler_RemoveJobs(t *testing.T) {
	s := newScheduler(t)

	mockJob1 := new(MockBundleJob)
	mockJob2 := new(MockBundleJob)

	assert.NoError(t, s.AddBundleJob(context.Background(), "* * * * *", mockJob1))
	assert.NoError(t, s.AddBundleJob(context.Background(), "*/5 * * * *", mockJob2))

	s.RemoveJobs()
	assert.Zero(t, s.Len())

	err := s.AddBundleJob(context.Background(), "* * * * *", mockJob1)
	assert.NoError(t, err, "Should be able to add job again after removal")
}
