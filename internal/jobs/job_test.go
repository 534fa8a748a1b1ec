package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := NewMemoryRegistry()

	job := reg.Create()
	assert.NotEqual(t, uuid.Nil, job.ID)

	snap := job.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.False(t, snap.StartedAt.IsZero())
	assert.Nil(t, snap.FinishedAt)
	assert.Zero(t, snap.LogCount)

	got, ok := reg.Get(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewMemoryRegistry()

	_, ok := reg.Get(uuid.New())
	assert.False(t, ok)
}

func TestJob_LogOrdering(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	for i := 0; i < 5; i++ {
		job.LogLine(fmt.Sprintf("line %d", i))
	}

	lines, next := job.LogsSince(0)
	assert.Equal(t, []string{"line 0", "line 1", "line 2", "line 3", "line 4"}, lines)
	assert.Equal(t, 5, next)

	// An incremental read picks up only new lines.
	job.LogLine("line 5")
	lines, next = job.LogsSince(next)
	assert.Equal(t, []string{"line 5"}, lines)
	assert.Equal(t, 6, next)

	lines, _ = job.LogsSince(next)
	assert.Empty(t, lines)
}

func TestJob_RingEviction(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	total := MaxLogLines + 50
	for i := 0; i < total; i++ {
		job.LogLine(fmt.Sprintf("line %d", i))
	}

	assert.Equal(t, total, job.Snapshot().LogCount)

	// A cursor before the oldest buffered line silently skips evicted lines.
	lines, next := job.LogsSince(0)
	require.Len(t, lines, MaxLogLines)
	assert.Equal(t, "line 50", lines[0])
	assert.Equal(t, fmt.Sprintf("line %d", total-1), lines[len(lines)-1])
	assert.Equal(t, total, next)
}

func TestJob_CompleteIsTerminalAndIdempotent(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	job.Complete(false)
	first := job.Snapshot()
	require.Equal(t, StatusFailed, first.Status)
	require.NotNil(t, first.FinishedAt)

	// A later success cannot resurrect a failed job.
	job.Complete(true)
	second := job.Snapshot()
	assert.Equal(t, StatusFailed, second.Status)
	assert.Equal(t, first.FinishedAt, second.FinishedAt)

	// The record is immutable after the terminal transition.
	job.LogLine("late line")
	assert.Equal(t, first.LogCount, job.Snapshot().LogCount)
}

func waitTerminal(t *testing.T, job *Job) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return job.Snapshot().Status != StatusRunning
	}, 5*time.Second, 5*time.Millisecond)
	return job.Snapshot()
}

func TestStartFunc_Success(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	StartFunc(context.Background(), job, func(ctx context.Context, logf LogFunc) error {
		logf("day %d: %d rows", 1, 2)
		return nil
	})

	snap := waitTerminal(t, job)
	assert.Equal(t, StatusFinished, snap.Status)

	lines, _ := job.LogsSince(0)
	assert.Equal(t, []string{"day 1: 2 rows"}, lines)
}

func TestStartFunc_ErrorFailsJob(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	StartFunc(context.Background(), job, func(ctx context.Context, logf LogFunc) error {
		return fmt.Errorf("token exchange failed")
	})

	snap := waitTerminal(t, job)
	assert.Equal(t, StatusFailed, snap.Status)

	lines, _ := job.LogsSince(0)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR: token exchange failed", lines[0])
}

func TestStartFunc_PanicFailsJob(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	StartFunc(context.Background(), job, func(ctx context.Context, logf LogFunc) error {
		panic("boom")
	})

	snap := waitTerminal(t, job)
	assert.Equal(t, StatusFailed, snap.Status)

	lines, _ := job.LogsSince(0)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR: panic: boom", lines[0])
}

func TestStartFunc_ReturnsBeforeTaskCompletes(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()
	release := make(chan struct{})

	StartFunc(context.Background(), job, func(ctx context.Context, logf LogFunc) error {
		<-release
		return nil
	})

	// The trigger path observed a running job before the task settled.
	assert.Equal(t, StatusRunning, job.Snapshot().Status)
	close(release)
	waitTerminal(t, job)
}

func TestStartCommand_TagsOutputAndUsesExitCode(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	StartCommand(context.Background(), job, "/bin/sh", "-c", "echo out-line; echo err-line >&2")

	snap := waitTerminal(t, job)
	assert.Equal(t, StatusFinished, snap.Status)

	lines, _ := job.LogsSince(0)
	assert.Contains(t, lines, "[OUT] out-line")
	assert.Contains(t, lines, "[ERR] err-line")
}

func TestStartCommand_NonZeroExitFailsJob(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	StartCommand(context.Background(), job, "/bin/sh", "-c", "exit 3")

	snap := waitTerminal(t, job)
	assert.Equal(t, StatusFailed, snap.Status)
}

func TestStartCommand_MissingBinaryFailsJob(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.Create()

	StartCommand(context.Background(), job, "/no/such/binary")

	snap := waitTerminal(t, job)
	assert.Equal(t, StatusFailed, snap.Status)

	lines, _ := job.LogsSince(0)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "ERROR:")
}
