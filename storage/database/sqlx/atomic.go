package sqlxrepos

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
)

type unitOfWork struct {
	db *sqlx.DB
}

var _ core.UnitOfWork = (*unitOfWork)(nil) // interface compliance check

// NewUnitOfWork returns a UnitOfWork running each unit in a transaction. Every key is locked with a
// transaction-level advisory lock, in sorted order, before `fn` runs.
func NewUnitOfWork(db *sqlx.DB) core.UnitOfWork {
	return &unitOfWork{db: db}
}

func (uow *unitOfWork) Atomically(ctx context.Context, keys []string, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := uow.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, key := range sortedKeys(keys) {
		if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return errors.Wrapf(err, "locking %q", key)
		}
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

// sortedKeys returns the distinct `keys`, sorted, so that concurrent units always lock in the same order.
func sortedKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)
	return sorted
}
