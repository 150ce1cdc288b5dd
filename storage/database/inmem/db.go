package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
)

type (
	DB struct {
		drive   *driveTable
		student *studentTable
		uow     sync.Mutex
	}

	driveTable struct {
		table map[string]*drive.Drive
		order []string // ids, in insertion order
		mutex sync.RWMutex
	}

	studentTable struct {
		table map[string]*student.Student
		order []string // ids, in insertion order
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		drive:   &driveTable{table: make(map[string]*drive.Drive)},
		student: &studentTable{table: make(map[string]*student.Student)},
	}
}

// Flush empties every table.
func (db *DB) Flush() {
	db.drive.mutex.Lock()
	db.drive.table = make(map[string]*drive.Drive)
	db.drive.order = nil
	db.drive.mutex.Unlock()

	db.student.mutex.Lock()
	db.student.table = make(map[string]*student.Student)
	db.student.order = nil
	db.student.mutex.Unlock()
}

type unitOfWork struct {
	db *DB
}

var _ core.UnitOfWork = (*unitOfWork)(nil) // interface compliance check

// NewUnitOfWork returns a UnitOfWork serializing every unit on one lock, whatever the keys.
func NewUnitOfWork(db *DB) core.UnitOfWork {
	return &unitOfWork{db: db}
}

func (uow *unitOfWork) Atomically(ctx context.Context, _ []string, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uow.db.uow.Lock()
	defer uow.db.uow.Unlock()
	return fn(nil)
}

// removeIDs returns `order` without the `ids`.
func removeIDs(order []string, ids []string) []string {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := order[:0]
	for _, id := range order {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	return kept
}

// paginate returns the `page` of `n` sorted items as a [start:end] range.
func paginate(n int, page core.Page) (start, end int) {
	if page.IsZero() {
		return 0, n
	}
	start = page.Offset()
	if start > n {
		start = n
	}
	end = start + page.Limit
	if end > n {
		end = n
	}
	return start, end
}

// compare returns -1, 0 or 1 for ordered values of the same type.
func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		bv := b.(string)
		return strings.Compare(strings.ToLower(av), strings.ToLower(bv))
	case int:
		bv := b.(int)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	case core.Date:
		bv := b.(core.Date)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
	case interface{ UnixNano() int64 }:
		an, bn := av.UnixNano(), b.(interface{ UnixNano() int64 }).UnixNano()
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
	}
	return 0
}

// sortBy sorts `n` items by `ordering`, using `field` to get the value of an ordering field of item i.
// Unknown fields are ignored; ties keep the insertion order.
func sortBy(n int, swap func(i, j int), ordering []core.DBOrdering, field func(i int, name string) (interface{}, bool)) {
	sort.Stable(sorter{n: n, swap: swap, less: func(i, j int) bool {
		for _, ord := range ordering {
			a, ok := field(i, ord.Field)
			if !ok {
				continue
			}
			b, _ := field(j, ord.Field)
			if c := compare(a, b); c != 0 {
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return false
	}})
}

type sorter struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (s sorter) Len() int           { return s.n }
func (s sorter) Swap(i, j int)      { s.swap(i, j) }
func (s sorter) Less(i, j int) bool { return s.less(i, j) }
