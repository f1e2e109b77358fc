package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type countJob struct {
	runs int
	err  error
}

func (j *countJob) Name() string { return "count" }

func (j *countJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func TestCronScheduler_AddAndRunNow(t *testing.T) {
	s := NewCronScheduler()
	job := &countJob{}
	require.NoError(t, s.AddJob(job, "0 3 * * *"))
	require.NoError(t, s.RunNow(context.Background(), "count"))
	require.Equal(t, 1, job.runs)

	job.err = errors.New("boom")
	require.Error(t, s.RunNow(context.Background(), "count"))
	require.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestCronScheduler_RejectsBadSpec(t *testing.T) {
	require.Error(t, NewCronScheduler().AddJob(&countJob{}, "not a cron"))
}
