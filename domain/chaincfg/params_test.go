package chaincfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/merkle"
	"github.com/coinchain/coinchaind/domain/consensus/utils/pow"
)

func TestGenesisBlocks(t *testing.T) {
	for _, params := range []*Params{&MainNetParams, &TestNetParams, &RegressionNetParams} {
		genesis := params.GenesisBlock
		if !consensushashing.BlockHash(genesis).IsEqual(params.GenesisHash) {
			t.Fatalf("TestGenesisBlocks: %s: genesis hash mismatch", params.Name)
		}
		merkleRoot := merkle.CalculateTransactionsMerkleRoot(genesis.Transactions)
		if merkleRoot != genesis.Header.MerkleRoot {
			t.Fatalf("TestGenesisBlocks: %s: bad merkle root", params.Name)
		}
		if !genesis.Coinbase().IsCoinbase() {
			t.Fatalf("TestGenesisBlocks: %s: first transaction is not a coinbase", params.Name)
		}
		if pow.CompactToBig(genesis.Header.Bits).Cmp(params.PowLimit) > 0 {
			t.Fatalf("TestGenesisBlocks: %s: genesis target above the limit", params.Name)
		}
		if pow.BigToCompact(params.PowLimit) != params.PowLimitBits {
			t.Fatalf("TestGenesisBlocks: %s: PowLimitBits %08x do not match PowLimit",
				params.Name, params.PowLimitBits)
		}
	}

	if MainNetParams.GenesisHash.IsEqual(RegressionNetParams.GenesisHash) {
		t.Fatalf("TestGenesisBlocks: mainnet and regtest share a genesis block")
	}
}

func TestCalcBlockSubsidy(t *testing.T) {
	params := &RegressionNetParams
	tests := []struct {
		height   uint64
		expected int64
	}{
		{0, 50 * coin},
		{149, 50 * coin},
		{150, 25 * coin},
		{300, 25 * coin / 2},
		{150 * 64, 0},
	}
	for _, test := range tests {
		if subsidy := params.CalcBlockSubsidy(test.height); subsidy != test.expected {
			t.Fatalf("TestCalcBlockSubsidy: height %d: expected %d, got %d",
				test.height, test.expected, subsidy)
		}
	}
}

func TestMaturityWindow(t *testing.T) {
	if window := MainNetParams.MaturityWindow(); window != 120 {
		t.Fatalf("TestMaturityWindow: expected 120, got %d", window)
	}
}

func TestParamsByName(t *testing.T) {
	params, err := ParamsByName("regtest")
	if err != nil {
		t.Fatalf("ParamsByName: %s", err)
	}
	if params != &RegressionNetParams {
		t.Fatalf("TestParamsByName: got %s", params.Name)
	}
	if _, err := ParamsByName("simnet"); err == nil {
		t.Fatalf("TestParamsByName: unknown network unexpectedly resolved")
	}
}

func writeParamsFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "params.yaml")
	err := os.WriteFile(path, []byte(content), 0600)
	if err != nil {
		t.Fatalf("WriteFile: %s", err)
	}
	return path
}

func TestLoadParamsFile(t *testing.T) {
	path := writeParamsFile(t, `
coinbaseMaturity: 5
targetTimePerBlock: 1m
minRelayTxFee: 10
powNoRetargeting: false
`)
	params, err := LoadParamsFile(path, &RegressionNetParams)
	if err != nil {
		t.Fatalf("LoadParamsFile: %s", err)
	}
	if params.CoinbaseMaturity != 5 || params.MaturityWindow() != 25 {
		t.Fatalf("TestLoadParamsFile: coinbase maturity was not overridden: %d", params.CoinbaseMaturity)
	}
	if params.TargetTimePerBlock != time.Minute {
		t.Fatalf("TestLoadParamsFile: target time per block is %s", params.TargetTimePerBlock)
	}
	if params.MinRelayTxFee != 10 || params.PowNoRetargeting {
		t.Fatalf("TestLoadParamsFile: fields were not overridden")
	}
	if params.BaseSubsidy != RegressionNetParams.BaseSubsidy {
		t.Fatalf("TestLoadParamsFile: unset field changed")
	}
	if RegressionNetParams.CoinbaseMaturity != 100 {
		t.Fatalf("TestLoadParamsFile: base parameters were modified")
	}
}

func TestLoadParamsFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "blockSize: 5\n"},
		{"bad pow limit", "powLimit: banana\n"},
		{"pow limit below genesis target", "powLimit: ff\n"},
		{"bad retarget factor", "retargetAdjustmentFactor: 0\n"},
		{"timespan shorter than block time", "targetTimespan: 1s\n"},
	}
	for _, test := range tests {
		path := writeParamsFile(t, test.content)
		if _, err := LoadParamsFile(path, &RegressionNetParams); err == nil {
			t.Fatalf("TestLoadParamsFileErrors: %s: expected an error", test.name)
		}
	}
}
