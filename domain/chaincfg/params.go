package chaincfg

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/pow"
	"github.com/pkg/errors"
)

// coin is the number of base units in one coin.
const coin = btcutil.SatoshiPerBitcoin

// MaturityGrace is the number of confirmations a coinbase output needs on
// top of CoinbaseMaturity before it may be spent.
const MaturityGrace = 20

// These variables are the proof-of-work limit parameters for each default
// network.
var (
	// bigOne is 1 represented as a big.Int. It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a block can have
	// for the main network. It is the value 2^224 - 1.
	mainPowLimit     = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)
	mainPowLimitBits = uint32(0x1d00ffff)

	// testnetPowLimit is the highest proof of work value a block can have
	// for the test network. It is the value 2^224 - 1.
	testnetPowLimit     = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)
	testnetPowLimitBits = uint32(0x1d00ffff)

	// regressionPowLimit is the highest proof of work value a block can
	// have for the regression test network. It is the value 2^255 - 1.
	regressionPowLimit     = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
	regressionPowLimitBits = uint32(0x207fffff)
)

// Params defines a network by its parameters.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *model.Block

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256. PowLimitBits is the same value in compact form.
	PowLimit     *big.Int
	PowLimitBits uint32

	// PowNoRetargeting defines whether the network keeps the difficulty
	// of the genesis block forever.
	PowNoRetargeting bool

	// TargetTimespan is the desired amount of time between difficulty
	// adjustments, and TargetTimePerBlock the desired amount of time to
	// generate each block. RetargetAdjustmentFactor bounds how much the
	// difficulty may change in one adjustment.
	TargetTimespan           time.Duration
	TargetTimePerBlock       time.Duration
	RetargetAdjustmentFactor int64

	// CoinbaseMaturity is the number of blocks required before newly mined
	// coins can be spent, not counting MaturityGrace.
	CoinbaseMaturity uint64

	// BaseSubsidy is the reward of the first blocks. It halves every
	// SubsidyHalvingInterval blocks.
	BaseSubsidy            int64
	SubsidyHalvingInterval uint64

	// MaxTimeOffset is how far in the future a block timestamp may be.
	MaxTimeOffset time.Duration

	// MedianTimeBlocks is the number of previous blocks whose timestamps
	// make up the median time past.
	MedianTimeBlocks int

	// MinAcceptedBlockVersion is the lowest block version accepted at all.
	MinAcceptedBlockVersion int32

	// Majority version upgrades. Once BlockEnforceNumRequired of the last
	// BlockUpgradeNumToCheck blocks carry a version, its rules are enforced
	// on blocks of that version. Once BlockRejectNumRequired do, older
	// versions are rejected.
	BlockEnforceNumRequired uint64
	BlockRejectNumRequired  uint64
	BlockUpgradeNumToCheck  uint64

	// HeightInCoinbaseVersion is the block version from which the
	// coinbase signature script must start with the serialized height.
	HeightInCoinbaseVersion int32

	// TotalBlocksEstimate is a conservative estimate of the chain height,
	// used to report synchronization progress.
	TotalBlocksEstimate uint64

	// MaxOrphanBlocks bounds the pool of blocks whose parent is unknown.
	MaxOrphanBlocks int

	// MinRelayTxFee is the minimum fee, in base units per 1000 bytes,
	// a transaction must pay to be claimed.
	MinRelayTxFee int64
}

// MaturityWindow returns the number of confirmations after which a
// coinbase output may be spent.
func (p *Params) MaturityWindow() uint64 {
	return p.CoinbaseMaturity + MaturityGrace
}

// CalcBlockSubsidy returns the subsidy a block at the given height may
// claim, before fees.
func (p *Params) CalcBlockSubsidy(height uint64) int64 {
	if p.SubsidyHalvingInterval == 0 {
		return p.BaseSubsidy
	}
	halvings := height / p.SubsidyHalvingInterval
	if halvings >= 63 {
		return 0
	}
	return p.BaseSubsidy >> halvings
}

// RetargetParams returns the difficulty adjustment parameters of the
// network.
func (p *Params) RetargetParams() *pow.RetargetParams {
	return &pow.RetargetParams{
		PowLimit:                 p.PowLimit,
		PowLimitBits:             p.PowLimitBits,
		TargetTimespan:           p.TargetTimespan,
		TargetTimePerBlock:       p.TargetTimePerBlock,
		RetargetAdjustmentFactor: p.RetargetAdjustmentFactor,
		NoRetargeting:            p.PowNoRetargeting,
	}
}

// Copy returns a shallow copy of p whose PowLimit may be replaced without
// affecting p.
func (p *Params) Copy() *Params {
	clone := *p
	clone.PowLimit = new(big.Int).Set(p.PowLimit)
	return &clone
}

// MainNetParams defines the network parameters for the main network.
var MainNetParams = Params{
	Name:         "mainnet",
	GenesisBlock: genesisBlock,
	GenesisHash:  genesisHash,

	PowLimit:                 mainPowLimit,
	PowLimitBits:             mainPowLimitBits,
	PowNoRetargeting:         false,
	TargetTimespan:           14 * 24 * time.Hour,
	TargetTimePerBlock:       10 * time.Minute,
	RetargetAdjustmentFactor: 4,

	CoinbaseMaturity:       100,
	BaseSubsidy:            50 * coin,
	SubsidyHalvingInterval: 210000,

	MaxTimeOffset:    2 * time.Hour,
	MedianTimeBlocks: 11,

	MinAcceptedBlockVersion: 1,
	BlockEnforceNumRequired: 750,
	BlockRejectNumRequired:  950,
	BlockUpgradeNumToCheck:  1000,
	HeightInCoinbaseVersion: 2,

	TotalBlocksEstimate: 0,
	MaxOrphanBlocks:     100,
	MinRelayTxFee:       1000,
}

// TestNetParams defines the network parameters for the test network.
var TestNetParams = Params{
	Name:         "testnet",
	GenesisBlock: testnetGenesisBlock,
	GenesisHash:  testnetGenesisHash,

	PowLimit:                 testnetPowLimit,
	PowLimitBits:             testnetPowLimitBits,
	PowNoRetargeting:         false,
	TargetTimespan:           14 * 24 * time.Hour,
	TargetTimePerBlock:       10 * time.Minute,
	RetargetAdjustmentFactor: 4,

	CoinbaseMaturity:       100,
	BaseSubsidy:            50 * coin,
	SubsidyHalvingInterval: 210000,

	MaxTimeOffset:    2 * time.Hour,
	MedianTimeBlocks: 11,

	MinAcceptedBlockVersion: 1,
	BlockEnforceNumRequired: 51,
	BlockRejectNumRequired:  75,
	BlockUpgradeNumToCheck:  100,
	HeightInCoinbaseVersion: 2,

	TotalBlocksEstimate: 0,
	MaxOrphanBlocks:     100,
	MinRelayTxFee:       1000,
}

// RegressionNetParams defines the network parameters for the regression
// test network. Blocks are trivial to mine and the difficulty never
// changes.
var RegressionNetParams = Params{
	Name:         "regtest",
	GenesisBlock: regtestGenesisBlock,
	GenesisHash:  regtestGenesisHash,

	PowLimit:                 regressionPowLimit,
	PowLimitBits:             regressionPowLimitBits,
	PowNoRetargeting:         true,
	TargetTimespan:           14 * 24 * time.Hour,
	TargetTimePerBlock:       10 * time.Minute,
	RetargetAdjustmentFactor: 4,

	CoinbaseMaturity:       100,
	BaseSubsidy:            50 * coin,
	SubsidyHalvingInterval: 150,

	MaxTimeOffset:    2 * time.Hour,
	MedianTimeBlocks: 11,

	MinAcceptedBlockVersion: 1,
	BlockEnforceNumRequired: 750,
	BlockRejectNumRequired:  950,
	BlockUpgradeNumToCheck:  1000,
	HeightInCoinbaseVersion: 2,

	TotalBlocksEstimate: 0,
	MaxOrphanBlocks:     100,
	MinRelayTxFee:       0,
}

var networks = map[string]*Params{
	MainNetParams.Name:       &MainNetParams,
	TestNetParams.Name:       &TestNetParams,
	RegressionNetParams.Name: &RegressionNetParams,
}

// ParamsByName returns the parameters of the network with the given name.
func ParamsByName(name string) (*Params, error) {
	params, ok := networks[name]
	if !ok {
		return nil, errors.Errorf("unknown network %q", name)
	}
	return params, nil
}
