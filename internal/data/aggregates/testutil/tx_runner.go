package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

// InjectedTxRunner runs mutation bodies without a database. FailCommit turns
// a successful body into a rolled-back one; CommitFailures limits that to the
// first N commits (0 means every commit).
type InjectedTxRunner struct {
	mu sync.Mutex

	FailCommit     error
	CommitFailures int

	Commits   int
	Rollbacks int
	failed    int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
		r.settle(false)
		return err
	}
	if err := r.commitError(); err != nil {
		r.settle(false)
		return err
	}
	r.settle(true)
	return nil
}

func (r *InjectedTxRunner) commitError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCommit == nil {
		return nil
	}
	if r.CommitFailures > 0 && r.failed >= r.CommitFailures {
		return nil
	}
	r.failed++
	return r.FailCommit
}

func (r *InjectedTxRunner) settle(committed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if committed {
		r.Commits++
	} else {
		r.Rollbacks++
	}
}
