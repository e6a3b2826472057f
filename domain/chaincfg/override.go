package chaincfg

import (
	"math/big"
	"os"
	"time"

	"github.com/coinchain/coinchaind/domain/consensus/utils/pow"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type overrideParamsConfig struct {
	PowLimit                 *string        `yaml:"powLimit"`
	PowNoRetargeting         *bool          `yaml:"powNoRetargeting"`
	TargetTimespan           *time.Duration `yaml:"targetTimespan"`
	TargetTimePerBlock       *time.Duration `yaml:"targetTimePerBlock"`
	RetargetAdjustmentFactor *int64         `yaml:"retargetAdjustmentFactor"`
	CoinbaseMaturity         *uint64        `yaml:"coinbaseMaturity"`
	BaseSubsidy              *int64         `yaml:"baseSubsidy"`
	SubsidyHalvingInterval   *uint64        `yaml:"subsidyHalvingInterval"`
	MaxTimeOffset            *time.Duration `yaml:"maxTimeOffset"`
	MinAcceptedBlockVersion  *int32         `yaml:"minAcceptedBlockVersion"`
	BlockEnforceNumRequired  *uint64        `yaml:"blockEnforceNumRequired"`
	BlockRejectNumRequired   *uint64        `yaml:"blockRejectNumRequired"`
	BlockUpgradeNumToCheck   *uint64        `yaml:"blockUpgradeNumToCheck"`
	TotalBlocksEstimate      *uint64        `yaml:"totalBlocksEstimate"`
	MaxOrphanBlocks          *int           `yaml:"maxOrphanBlocks"`
	MinRelayTxFee            *int64         `yaml:"minRelayTxFee"`
}

// LoadParamsFile returns a copy of base with the fields set in the YAML file
// at path overridden. Unknown fields are an error.
func LoadParamsFile(path string, base *Params) (*Params, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	config := &overrideParamsConfig{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't parse %s", path)
	}

	return config.apply(base)
}

func (config *overrideParamsConfig) apply(base *Params) (*Params, error) {
	params := base.Copy()

	if config.PowLimit != nil {
		powLimit, ok := big.NewInt(0).SetString(*config.PowLimit, 16)
		if !ok {
			return nil, errors.Errorf("couldn't convert %s to big int", *config.PowLimit)
		}

		genesisTarget := pow.CompactToBig(params.GenesisBlock.Header.Bits)
		if powLimit.Cmp(genesisTarget) < 0 {
			return nil, errors.Errorf("powLimit (%s) is smaller than genesis's target (%s)",
				powLimit.Text(16), genesisTarget.Text(16))
		}
		params.PowLimit = powLimit
		params.PowLimitBits = pow.BigToCompact(powLimit)
	}

	if config.PowNoRetargeting != nil {
		params.PowNoRetargeting = *config.PowNoRetargeting
	}

	if config.TargetTimespan != nil {
		params.TargetTimespan = *config.TargetTimespan
	}

	if config.TargetTimePerBlock != nil {
		params.TargetTimePerBlock = *config.TargetTimePerBlock
	}

	if params.TargetTimePerBlock <= 0 || params.TargetTimespan < params.TargetTimePerBlock {
		return nil, errors.Errorf("targetTimespan (%s) must be at least targetTimePerBlock (%s)",
			params.TargetTimespan, params.TargetTimePerBlock)
	}

	if config.RetargetAdjustmentFactor != nil {
		if *config.RetargetAdjustmentFactor <= 0 {
			return nil, errors.Errorf("retargetAdjustmentFactor must be positive")
		}
		params.RetargetAdjustmentFactor = *config.RetargetAdjustmentFactor
	}

	if config.CoinbaseMaturity != nil {
		params.CoinbaseMaturity = *config.CoinbaseMaturity
	}

	if config.BaseSubsidy != nil {
		params.BaseSubsidy = *config.BaseSubsidy
	}

	if config.SubsidyHalvingInterval != nil {
		params.SubsidyHalvingInterval = *config.SubsidyHalvingInterval
	}

	if config.MaxTimeOffset != nil {
		params.MaxTimeOffset = *config.MaxTimeOffset
	}

	if config.MinAcceptedBlockVersion != nil {
		params.MinAcceptedBlockVersion = *config.MinAcceptedBlockVersion
	}

	if config.BlockEnforceNumRequired != nil {
		params.BlockEnforceNumRequired = *config.BlockEnforceNumRequired
	}

	if config.BlockRejectNumRequired != nil {
		params.BlockRejectNumRequired = *config.BlockRejectNumRequired
	}

	if config.BlockUpgradeNumToCheck != nil {
		params.BlockUpgradeNumToCheck = *config.BlockUpgradeNumToCheck
	}

	if config.TotalBlocksEstimate != nil {
		params.TotalBlocksEstimate = *config.TotalBlocksEstimate
	}

	if config.MaxOrphanBlocks != nil {
		params.MaxOrphanBlocks = *config.MaxOrphanBlocks
	}

	if config.MinRelayTxFee != nil {
		params.MinRelayTxFee = *config.MinRelayTxFee
	}

	return params, nil
}
