package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes fn in a goroutine with a timeout, panic recovery and error
// logging. Values of parentCtx stay visible to fn but its cancellation does not.
func SafeGo(parentCtx context.Context, log logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	go run(parentCtx, log, timeout, taskName, fn)
}

func run(parentCtx context.Context, log logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"task":  taskName,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("panic in background task")
		}
	}()

	if err := fn(ctx); err != nil {
		log.WithError(err).WithField("task", taskName).Warn("background task failed")
	}
}

// Group tracks SafeGo tasks so shutdown can wait for in-flight work.
type Group struct {
	log logrus.FieldLogger
	wg  sync.WaitGroup
}

// NewGroup returns a task group logging through log.
func NewGroup(log logrus.FieldLogger) *Group {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Group{log: log}
}

// Go launches fn like SafeGo and tracks it.
func (g *Group) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(parentCtx, g.log, timeout, taskName, fn)
	}()
}

// Wait blocks until every tracked task has finished or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
