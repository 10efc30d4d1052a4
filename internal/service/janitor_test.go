package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/brickify/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedJob(t *testing.T, svc *TranscodeService, runner *fakeRunner, output string) *TranscodeJob {
	t.Helper()
	job, err := svc.Submit(context.Background(), "in.mp4", 10)
	require.NoError(t, err)
	runner.call(t, job.ID).completion(pipeline.Success(output))
	return job
}

func TestNewJanitor_Rejects(t *testing.T) {
	svc := NewTranscodeService(context.Background())

	_, err := NewJanitor(svc, 0, "@every 1m")
	assert.Error(t, err)

	_, err = NewJanitor(svc, time.Hour, "whenever")
	assert.Error(t, err)

	_, err = NewJanitor(svc, time.Hour, "*/5 * * * *")
	assert.NoError(t, err)
}

func TestJanitor_RunOnce(t *testing.T) {
	dir := t.TempDir()
	runner := newFakeRunner()
	svc := NewTranscodeService(context.Background()).WithRunner(runner)

	kept := filepath.Join(dir, "kept.mp4")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0o644))
	expired := finishedJob(t, svc, runner, kept)
	missing := finishedJob(t, svc, runner, filepath.Join(dir, "already-gone.mp4"))

	running, err := svc.Submit(context.Background(), "in.mp4", 10)
	require.NoError(t, err)

	j, err := NewJanitor(svc, time.Hour, "@every 1m")
	require.NoError(t, err)

	// Nothing is old enough yet.
	assert.Equal(t, 0, j.RunOnce(context.Background()))
	assert.FileExists(t, kept)

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 2, j.RunOnce(context.Background()))
	assert.NoFileExists(t, kept)

	_, err = svc.GetByID(context.Background(), expired.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = svc.GetByID(context.Background(), missing.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = svc.GetByID(context.Background(), running.ID)
	assert.NoError(t, err)
}

func TestJanitor_StartStop(t *testing.T) {
	runner := newFakeRunner()
	svc := NewTranscodeService(context.Background()).WithRunner(runner)
	job := finishedJob(t, svc, runner, "")

	j, err := NewJanitor(svc, time.Minute, "@every 1s")
	require.NoError(t, err)
	j.now = func() time.Time { return time.Now().Add(time.Hour) }

	require.NoError(t, j.Start(context.Background()))
	assert.Error(t, j.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, err := svc.GetByID(context.Background(), job.ID)
		return err != nil
	}, 5*time.Second, 50*time.Millisecond)

	j.Stop()
	j.Stop()
}
