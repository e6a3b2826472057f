package blockchain

import (
	"github.com/pkg/errors"
)

// journal records the inverse of every in-memory mutation of a
// reorganization, so that a failed reorganization can be undone.
type journal struct {
	undos []func() error
}

func (j *journal) push(undo func() error) {
	j.undos = append(j.undos, undo)
}

// rollback runs the recorded inverses, most recent first, and empties the
// journal. An error here means memory no longer matches the store.
func (j *journal) rollback() error {
	for i := len(j.undos) - 1; i >= 0; i-- {
		err := j.undos[i]()
		if err != nil {
			j.undos = nil
			return errors.Wrap(err, "failed rolling back a reorganization")
		}
	}
	j.undos = nil
	return nil
}
