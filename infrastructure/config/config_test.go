package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/coinchain/coinchaind/domain/chaincfg"
)

func testArgs(t *testing.T, args ...string) []string {
	dir := t.TempDir()
	return append([]string{
		"--configfile=" + filepath.Join(dir, "coinchaind.conf"),
		"--datadir=" + filepath.Join(dir, "data"),
		"--logdir=" + filepath.Join(dir, "logs"),
	}, args...)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, _, err := LoadConfig(testArgs(t))
	if err != nil {
		t.Fatalf("TestLoadConfigDefaults: LoadConfig: %s", err)
	}
	if cfg.NetParams().Name != chaincfg.MainNetParams.Name {
		t.Errorf("TestLoadConfigDefaults: expected network %s, got %s",
			chaincfg.MainNetParams.Name, cfg.NetParams().Name)
	}
	if filepath.Base(cfg.DataDir) != chaincfg.MainNetParams.Name {
		t.Errorf("TestLoadConfigDefaults: data directory %s is not namespaced by network", cfg.DataDir)
	}
	if cfg.DbType != DbTypeLevelDB {
		t.Errorf("TestLoadConfigDefaults: expected dbtype %s, got %s", DbTypeLevelDB, cfg.DbType)
	}
	if cfg.VerificationDepth != 1 {
		t.Errorf("TestLoadConfigDefaults: expected verification depth 1, got %d", cfg.VerificationDepth)
	}
	if cfg.MinRelayTxFee != btcutil.Amount(chaincfg.MainNetParams.MinRelayTxFee) {
		t.Errorf("TestLoadConfigDefaults: expected the network's minimum relay fee, got %s", cfg.MinRelayTxFee)
	}
	if cfg.MaxOrphanBlocks != chaincfg.MainNetParams.MaxOrphanBlocks {
		t.Errorf("TestLoadConfigDefaults: expected %d max orphan blocks, got %d",
			chaincfg.MainNetParams.MaxOrphanBlocks, cfg.MaxOrphanBlocks)
	}
	if cfg.PurgeInterval != defaultPurgeInterval {
		t.Errorf("TestLoadConfigDefaults: expected purge interval %s, got %s", defaultPurgeInterval, cfg.PurgeInterval)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, _, err := LoadConfig(testArgs(t,
		"--regtest",
		"--dbtype=bolt",
		"--purgedepth=100",
		"--lazypurging",
		"--purgeinterval=30s",
		"--verificationdepth=0",
		"--minrelaytxfee=0.0001",
		"--maxorphanblocks=7",
		"--scripttounspents",
	))
	if err != nil {
		t.Fatalf("TestLoadConfigOverrides: LoadConfig: %s", err)
	}
	params := cfg.NetParams()
	if params.Name != chaincfg.RegressionNetParams.Name {
		t.Fatalf("TestLoadConfigOverrides: expected network %s, got %s",
			chaincfg.RegressionNetParams.Name, params.Name)
	}
	if cfg.DbType != DbTypeBolt || cfg.PurgeDepth != 100 || !cfg.LazyPurging ||
		cfg.PurgeInterval != 30*time.Second || !cfg.ScriptToUnspents {
		t.Errorf("TestLoadConfigOverrides: options were not applied: %+v", cfg.Flags)
	}
	if cfg.VerificationDepth != 0 {
		t.Errorf("TestLoadConfigOverrides: expected verification depth 0, got %d", cfg.VerificationDepth)
	}
	if cfg.MinRelayTxFee != 10000 || params.MinRelayTxFee != 10000 {
		t.Errorf("TestLoadConfigOverrides: expected a minimum relay fee of 10000, got %s and %d",
			cfg.MinRelayTxFee, params.MinRelayTxFee)
	}
	if params.MaxOrphanBlocks != 7 {
		t.Errorf("TestLoadConfigOverrides: expected 7 max orphan blocks, got %d", params.MaxOrphanBlocks)
	}
	if chaincfg.RegressionNetParams.MaxOrphanBlocks == 7 {
		t.Errorf("TestLoadConfigOverrides: the package level parameters were modified")
	}
}

func TestLoadConfigFile(t *testing.T) {
	args := testArgs(t, "--purgedepth=20")
	configFile := args[0][len("--configfile="):]
	err := os.WriteFile(configFile, []byte("[Application Options]\nregtest=1\npurgedepth=10\nvalidationdepth=3\n"), 0600)
	if err != nil {
		t.Fatalf("TestLoadConfigFile: %s", err)
	}

	cfg, _, err := LoadConfig(args)
	if err != nil {
		t.Fatalf("TestLoadConfigFile: LoadConfig: %s", err)
	}
	if cfg.NetParams().Name != chaincfg.RegressionNetParams.Name {
		t.Errorf("TestLoadConfigFile: the network of the config file was not applied")
	}
	if cfg.ValidationDepth != 3 {
		t.Errorf("TestLoadConfigFile: expected validation depth 3, got %d", cfg.ValidationDepth)
	}
	if cfg.PurgeDepth != 20 {
		t.Errorf("TestLoadConfigFile: the command line should take precedence, got purge depth %d", cfg.PurgeDepth)
	}
}

func TestLoadConfigChainParams(t *testing.T) {
	paramsFile := filepath.Join(t.TempDir(), "params.yaml")
	err := os.WriteFile(paramsFile, []byte("coinbaseMaturity: 5\ntotalBlocksEstimate: 1000\n"), 0600)
	if err != nil {
		t.Fatalf("TestLoadConfigChainParams: %s", err)
	}

	cfg, _, err := LoadConfig(testArgs(t, "--regtest", "--chainparams="+paramsFile))
	if err != nil {
		t.Fatalf("TestLoadConfigChainParams: LoadConfig: %s", err)
	}
	if cfg.NetParams().CoinbaseMaturity != 5 {
		t.Errorf("TestLoadConfigChainParams: expected coinbase maturity 5, got %d", cfg.NetParams().CoinbaseMaturity)
	}
	if cfg.VerificationDepth != 1000 {
		t.Errorf("TestLoadConfigChainParams: expected the verification depth to default to the block "+
			"count estimate, got %d", cfg.VerificationDepth)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "multiple networks", args: []string{"--testnet", "--regtest"}},
		{name: "unknown database", args: []string{"--dbtype=ffldb"}},
		{name: "short purge interval", args: []string{"--purgeinterval=10ms"}},
		{name: "lazy purging without depth", args: []string{"--lazypurging"}},
		{name: "negative fee", args: []string{"--minrelaytxfee=-2"}},
		{name: "negative verification depth", args: []string{"--verificationdepth=-5"}},
		{name: "missing import file", args: []string{"--import=/nonexistent/bootstrap.dat"}},
		{name: "bad debug level", args: []string{"--debuglevel=loud"}},
		{name: "unknown option", args: []string{"--nosuchoption"}},
		{name: "privileged profile port", args: []string{"--profile=80"}},
		{name: "malformed profile port", args: []string{"--profile=localhost"}},
	}

	for _, test := range tests {
		_, _, err := LoadConfig(testArgs(t, test.args...))
		if err == nil {
			t.Errorf("TestLoadConfigErrors: %s: expected an error", test.name)
		}
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "coinchaind.conf")
	err := createDefaultConfigFile(path)
	if err != nil {
		t.Fatalf("TestCreateDefaultConfigFile: %s", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("TestCreateDefaultConfigFile: %s", err)
	}
	if string(content) != sampleConfig {
		t.Errorf("TestCreateDefaultConfigFile: the written file differs from the sample")
	}
}
