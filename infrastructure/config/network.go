package config

import (
	"fmt"
	"os"

	"github.com/coinchain/coinchaind/domain/chaincfg"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	Testnet         bool   `long:"testnet" description:"Use the test network"`
	RegressionTest  bool   `long:"regtest" description:"Use the regression test network"`
	ChainParamsFile string `long:"chainparams" description:"YAML file overriding the parameters of the selected network"`

	ActiveNetParams *chaincfg.Params
}

// ResolveNetwork parses the network command line argument and sets ActiveNetParams accordingly.
// It returns error if more than one network was selected, nil otherwise.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	// The parameters are copied so that overrides never leak into the
	// package level values.
	networkFlags.ActiveNetParams = chaincfg.MainNetParams.Copy()

	numNets := 0
	if networkFlags.Testnet {
		numNets++
		networkFlags.ActiveNetParams = chaincfg.TestNetParams.Copy()
	}
	if networkFlags.RegressionTest {
		numNets++
		networkFlags.ActiveNetParams = chaincfg.RegressionNetParams.Copy()
	}
	if numNets > 1 {
		message := "Multiple networks parameters (testnet, regtest) cannot be used " +
			"together. Please choose only one network"
		err := errors.Errorf(message)
		fmt.Fprintln(os.Stderr, err)
		if parser != nil {
			parser.WriteHelp(os.Stderr)
		}
		return err
	}

	return networkFlags.overrideChainParams()
}

// NetParams returns the ActiveNetParams
func (networkFlags *NetworkFlags) NetParams() *chaincfg.Params {
	return networkFlags.ActiveNetParams
}

func (networkFlags *NetworkFlags) overrideChainParams() error {
	if networkFlags.ChainParamsFile == "" {
		return nil
	}

	params, err := chaincfg.LoadParamsFile(networkFlags.ChainParamsFile, networkFlags.ActiveNetParams)
	if err != nil {
		return err
	}
	networkFlags.ActiveNetParams = params
	return nil
}
