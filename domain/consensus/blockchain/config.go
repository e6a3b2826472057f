package blockchain

import (
	"time"

	"github.com/coinchain/coinchaind/domain/chaincfg"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/stats"
	"github.com/coinchain/coinchaind/domain/consensus/verifier"
	"github.com/pkg/errors"
)

// DefaultBranchRetentionDepth is the default number of blocks below the
// best height a side branch tip may fall before the branch is pruned.
const DefaultBranchRetentionDepth = 288

// SideBranchPolicy decides whether the body of a block that lands on a
// side branch is checked when it arrives. Blocks are always fully
// validated before they are attached, whatever the policy.
type SideBranchPolicy int

const (
	// SideBranchCheckWithinValidationDepth checks side branch blocks no
	// deeper than the validation depth below the best height.
	SideBranchCheckWithinValidationDepth SideBranchPolicy = iota

	// SideBranchCheckAlways checks every side branch block.
	SideBranchCheckAlways

	// SideBranchCheckNever defers all checks to attach time.
	SideBranchCheckNever
)

// Config holds the parameters of a BlockChain.
type Config struct {
	// Params is the network the chain follows.
	Params *chaincfg.Params

	// DatabaseContext is the store the chain persists to.
	DatabaseContext *chainstore.DatabaseContext

	// Observer is notified of chain activity. Defaults to stats.NoopObserver.
	Observer stats.Observer

	// Verifier checks transaction inputs. Defaults to a
	// verifier.SignatureVerifier.
	Verifier verifier.Verifier

	// PurgeDepth is the number of blocks below the best height whose
	// bodies and spend history are kept. Zero keeps everything.
	PurgeDepth uint64

	// LazyPurging defers purging to explicit Purge calls.
	LazyPurging bool

	// ValidationDepth is the number of best chain blocks whose bodies are
	// re-checked when the chain is loaded. Zero trusts the store.
	ValidationDepth uint64

	// VerificationDepth is the height from which the inputs of attached
	// blocks are verified. Blocks below it are trusted, typically up to
	// Params.TotalBlocksEstimate. Zero disables input verification.
	VerificationDepth uint64

	// ScriptToUnspents enables the index of unspent outputs by script.
	ScriptToUnspents bool

	// BranchRetentionDepth bounds how long stale side branches are kept.
	// Defaults to DefaultBranchRetentionDepth.
	BranchRetentionDepth uint64

	// MaxOrphanBlocks bounds the orphan pool. Defaults to
	// Params.MaxOrphanBlocks.
	MaxOrphanBlocks int

	// SideBranchPolicy decides which side branch blocks are checked on
	// arrival.
	SideBranchPolicy SideBranchPolicy

	// TimeSource returns the current time. Defaults to time.Now.
	TimeSource func() time.Time
}

func (cfg *Config) validate() error {
	if cfg.Params == nil {
		return errors.New("blockchain.New: chain parameters are required")
	}
	if cfg.DatabaseContext == nil {
		return errors.New("blockchain.New: a database context is required")
	}
	return nil
}

func (cfg *Config) withDefaults() *Config {
	withDefaults := *cfg
	if withDefaults.Observer == nil {
		withDefaults.Observer = stats.NoopObserver{}
	}
	if withDefaults.Verifier == nil {
		withDefaults.Verifier = verifier.NewSignatureVerifier()
	}
	if withDefaults.BranchRetentionDepth == 0 {
		withDefaults.BranchRetentionDepth = DefaultBranchRetentionDepth
	}
	if withDefaults.MaxOrphanBlocks == 0 {
		withDefaults.MaxOrphanBlocks = withDefaults.Params.MaxOrphanBlocks
	}
	if withDefaults.TimeSource == nil {
		withDefaults.TimeSource = time.Now
	}
	return &withDefaults
}
