package async

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() (*logrus.Logger, *test.Hook) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	hook := test.NewLocal(log)
	return log, hook
}

func TestGroupRunsTasks(t *testing.T) {
	log, _ := quietLogger()
	g := NewGroup(log)

	var executed atomic.Int32
	for i := 0; i < 5; i++ {
		g.Go(context.Background(), time.Second, "count", func(ctx context.Context) error {
			executed.Add(1)
			return nil
		})
	}

	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, int32(5), executed.Load())
}

func TestGroupLogsErrorsAndPanics(t *testing.T) {
	log, hook := quietLogger()
	g := NewGroup(log)

	g.Go(context.Background(), time.Second, "failing", func(ctx context.Context) error {
		return errors.New("smtp down")
	})
	g.Go(context.Background(), time.Second, "panicking", func(ctx context.Context) error {
		panic("boom")
	})
	require.NoError(t, g.Wait(context.Background()))

	var warned, errored bool
	for _, e := range hook.AllEntries() {
		switch e.Level {
		case logrus.WarnLevel:
			warned = e.Data["task"] == "failing"
		case logrus.ErrorLevel:
			errored = e.Data["task"] == "panicking"
		}
	}
	assert.True(t, warned)
	assert.True(t, errored)
}

func TestTaskSurvivesParentCancellation(t *testing.T) {
	log, _ := quietLogger()
	g := NewGroup(log)

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr atomic.Value
	g.Go(parent, time.Second, "detached", func(ctx context.Context) error {
		ctxErr.Store(ctx.Err() == nil)
		return nil
	})
	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, true, ctxErr.Load())
}

func TestTaskTimeout(t *testing.T) {
	log, _ := quietLogger()
	g := NewGroup(log)

	var timedOut atomic.Bool
	g.Go(context.Background(), 20*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		timedOut.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	require.NoError(t, g.Wait(context.Background()))
	assert.True(t, timedOut.Load())
}

func TestWaitHonoursContext(t *testing.T) {
	log, _ := quietLogger()
	g := NewGroup(log)

	release := make(chan struct{})
	g.Go(context.Background(), time.Second, "blocked", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
	close(release)
}
