package stats

import (
	"time"

	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
)

// Stage names a timed step of block processing.
type Stage string

// Stages reported through Observer.StageTimed.
const (
	StageDetach Stage = "detach"
	StageAttach Stage = "attach"
	StageVerify Stage = "verify"
	StagePurge  Stage = "purge"
)

// Observer receives notifications about chain activity. Observers are
// never consulted for correctness and must not call back into the chain.
type Observer interface {
	AppendDone(outcome ruleerrors.Outcome, duration time.Duration)
	Reorganized(detached, attached int)
	BestChanged(height uint64)
	ClaimsChanged(count int)
	Purged(blocks int)
	StageTimed(stage Stage, duration time.Duration)
}

// NoopObserver ignores every notification.
type NoopObserver struct{}

// AppendDone implements Observer.
func (NoopObserver) AppendDone(ruleerrors.Outcome, time.Duration) {}

// Reorganized implements Observer.
func (NoopObserver) Reorganized(int, int) {}

// BestChanged implements Observer.
func (NoopObserver) BestChanged(uint64) {}

// ClaimsChanged implements Observer.
func (NoopObserver) ClaimsChanged(int) {}

// Purged implements Observer.
func (NoopObserver) Purged(int) {}

// StageTimed implements Observer.
func (NoopObserver) StageTimed(Stage, time.Duration) {}
