package node

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/replication"
)

var ErrLoopStopped = errors.New("node loop is stopped")

// Loop owns a Node and runs it in a single goroutine, ticking it at a fixed
// interval. Other goroutines access the node through Do, which runs the
// function between two ticks.
type Loop struct {
	node     *Node
	interval time.Duration
	calls    chan func(*Node)
	done     chan struct{}
	logger   log.Logger
}

func NewLoop(n *Node, interval time.Duration, logger log.Logger) *Loop {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Loop{
		node:     n,
		interval: interval,
		calls:    make(chan func(*Node)),
		done:     make(chan struct{}),
		logger:   log.With(logger, "component", "loop"),
	}
}

// Run starts the node and ticks it until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.node.Start()
	level.Info(l.logger).Log("msg", "node loop started", "interval", l.interval)

	for {
		select {
		case <-ctx.Done():
			level.Info(l.logger).Log("msg", "node loop stopped")
			return nil
		case <-ticker.C:
			l.node.Tick()
		case fn := <-l.calls:
			fn(l.node)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func(*Node)) error {
	finished := make(chan struct{})

	call := func(n *Node) {
		defer close(finished)
		fn(n)
	}

	select {
	case l.calls <- call:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished

	return nil
}

// execute starts a request on the node and waits for its outcome.
func (l *Loop) execute(ctx context.Context, start func(*Node) (int64, error)) (replication.Outcome, error) {
	var (
		wait <-chan replication.Outcome
		err  error
	)

	if doErr := l.Do(ctx, func(n *Node) {
		var id int64
		if id, err = start(n); err == nil {
			wait, err = n.Await(id)
		}
	}); doErr != nil {
		return replication.Outcome{}, doErr
	}

	if err != nil {
		return replication.Outcome{}, err
	}

	select {
	case out := <-wait:
		return out, nil
	case <-l.done:
		return replication.Outcome{}, ErrLoopStopped
	case <-ctx.Done():
		return replication.Outcome{}, ctx.Err()
	}
}

func (l *Loop) Create(ctx context.Context, key, value string) (replication.Outcome, error) {
	return l.execute(ctx, func(n *Node) (int64, error) {
		return n.Create(key, value)
	})
}

func (l *Loop) Read(ctx context.Context, key string) (replication.Outcome, error) {
	return l.execute(ctx, func(n *Node) (int64, error) {
		return n.Read(key)
	})
}

func (l *Loop) Update(ctx context.Context, key, value string) (replication.Outcome, error) {
	return l.execute(ctx, func(n *Node) (int64, error) {
		return n.Update(key, value)
	})
}

func (l *Loop) Delete(ctx context.Context, key string) (replication.Outcome, error) {
	return l.execute(ctx, func(n *Node) (int64, error) {
		return n.Delete(key)
	})
}

// Members returns the membership table of the node.
func (l *Loop) Members(ctx context.Context) ([]membership.Entry, error) {
	var entries []membership.Entry

	err := l.Do(ctx, func(n *Node) {
		entries = n.Members()
	})

	return entries, err
}

func (l *Loop) Self() membership.PeerID {
	return l.node.Self()
}
