package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/coinchain/coinchaind/infrastructure/logger"
	"github.com/coinchain/coinchaind/version"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultConfigFilename  = "coinchaind.conf"
	defaultDataDirname     = "data"
	defaultLogLevel        = "info"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "coinchaind.log"
	defaultErrLogFilename  = "coinchaind_err.log"
	defaultPurgeInterval   = time.Minute
	defaultValidationDepth = 10
	minPurgeInterval       = time.Second

	// unsetFlag marks a numeric flag left to the network default.
	unsetFlag = -1
)

// Database backends.
const (
	DbTypeLevelDB = "leveldb"
	DbTypeBolt    = "bolt"
)

var (
	// DefaultAppDir is the default home directory for coinchaind.
	DefaultAppDir = btcutil.AppDataDir("coinchaind", false)

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(DefaultAppDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
	knownDbTypes      = []string{DbTypeLevelDB, DbTypeBolt}
)

//go:embed sample-coinchaind.conf
var sampleConfig string

// Flags defines the configuration options for coinchaind.
//
// See LoadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion       bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir           string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir            string        `long:"logdir" description:"Directory to log output."`
	DebugLevel        string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	DbType            string        `long:"dbtype" description:"Database backend to use for the chain {leveldb, bolt}"`
	PurgeDepth        uint64        `long:"purgedepth" description:"Number of blocks below the best block whose bodies and spend history are kept -- 0 keeps everything"`
	LazyPurging       bool          `long:"lazypurging" description:"Purge periodically instead of after every new best block"`
	PurgeInterval     time.Duration `long:"purgeinterval" description:"How often a lazy purge runs. Valid time units are {s, m, h}. Minimum 1 second"`
	ValidationDepth   uint64        `long:"validationdepth" description:"Number of best chain blocks re-checked on startup, and the depth within which side branch blocks are checked on arrival"`
	VerificationDepth int64         `long:"verificationdepth" description:"Height from which transaction inputs are verified -- 0 disables verification (default: the network's block count estimate)"`
	ScriptToUnspents  bool          `long:"scripttounspents" description:"Maintain an index of unspent outputs by script"`
	MinRelayTxFee     float64       `long:"minrelaytxfee" description:"The minimum transaction fee in coins/kB to be considered a non-zero fee (default: the network's setting)"`
	MaxOrphanBlocks   int           `long:"maxorphanblocks" description:"Max number of orphan blocks to keep in memory (default: the network's setting)"`
	ImportFile        string        `long:"import" description:"Append the blocks of the given file on startup"`
	MetricsListen     string        `long:"metricslisten" description:"Serve prometheus metrics on the given interface/port (eg. 127.0.0.1:9100)"`
	Profile           string        `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65535"`
	NetworkFlags
}

// Config defines the configuration options for coinchaind.
//
// See LoadConfig for details on the configuration load process.
type Config struct {
	*Flags
	MinRelayTxFee     btcutil.Amount
	VerificationDepth uint64
	LogFile           string
	ErrLogFile        string
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range knownDbTypes {
		if dbType == knownType {
			return true
		}
	}
	return false
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:        defaultConfigFile,
		DataDir:           defaultDataDir,
		LogDir:            defaultLogDir,
		DebugLevel:        defaultLogLevel,
		DbType:            DbTypeLevelDB,
		PurgeInterval:     defaultPurgeInterval,
		ValidationDepth:   defaultValidationDepth,
		VerificationDepth: unsetFlag,
		MinRelayTxFee:     unsetFlag,
		MaxOrphanBlocks:   unsetFlag,
	}
}

// LoadConfig initializes and parses the config using a config file and
// the command line options in args.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in coinchaind functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options. Command line options always take
// precedence.
func LoadConfig(args []string) (*Config, []string, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// Load additional config from file.
	parser := flags.NewParser(cfgFlags, flags.Default)
	if preCfg.ConfigFile == defaultConfigFile {
		if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
			err := createDefaultConfigFile(preCfg.ConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a default config file: %s\n", err)
			}
		}
	}
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	cfg := &Config{Flags: cfgFlags}
	err = cfg.resolve(parser)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	return cfg, remainingArgs, nil
}

// resolve validates the parsed flags and derives the rest of cfg from them.
func (cfg *Config) resolve(parser *flags.Parser) error {
	funcName := "loadConfig"

	err := cfg.ResolveNetwork(parser)
	if err != nil {
		return err
	}
	params := cfg.NetParams()

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), params.Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), params.Name)
	cfg.LogFile = filepath.Join(cfg.LogDir, defaultLogFilename)
	cfg.ErrLogFile = filepath.Join(cfg.LogDir, defaultErrLogFilename)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}
	err = logger.ParseAndSetDebugLevels(cfg.DebugLevel)
	if err != nil {
		return errors.Errorf("%s: %s", funcName, err)
	}

	if !validDbType(cfg.DbType) {
		return errors.Errorf("%s: The specified database type [%s] is invalid -- "+
			"supported types %s", funcName, cfg.DbType, strings.Join(knownDbTypes, ", "))
	}

	if cfg.PurgeInterval < minPurgeInterval {
		return errors.Errorf("%s: The purgeinterval option may not be less than %s -- parsed [%s]",
			funcName, minPurgeInterval, cfg.PurgeInterval)
	}
	if cfg.LazyPurging && cfg.PurgeDepth == 0 {
		return errors.Errorf("%s: The lazypurging option requires a non-zero purgedepth", funcName)
	}

	switch {
	case cfg.Flags.VerificationDepth == unsetFlag:
		cfg.VerificationDepth = params.TotalBlocksEstimate
		if cfg.VerificationDepth == 0 {
			cfg.VerificationDepth = 1
		}
	case cfg.Flags.VerificationDepth < 0:
		return errors.Errorf("%s: The verificationdepth option may not be negative -- parsed [%d]",
			funcName, cfg.Flags.VerificationDepth)
	default:
		cfg.VerificationDepth = uint64(cfg.Flags.VerificationDepth)
	}

	switch {
	case cfg.Flags.MinRelayTxFee == unsetFlag:
		cfg.MinRelayTxFee = btcutil.Amount(params.MinRelayTxFee)
	case cfg.Flags.MinRelayTxFee < 0:
		return errors.Errorf("%s: The minrelaytxfee option may not be negative -- parsed [%f]",
			funcName, cfg.Flags.MinRelayTxFee)
	default:
		cfg.MinRelayTxFee, err = btcutil.NewAmount(cfg.Flags.MinRelayTxFee)
		if err != nil {
			return errors.Errorf("%s: invalid minrelaytxfee: %s", funcName, err)
		}
		params.MinRelayTxFee = int64(cfg.MinRelayTxFee)
	}

	switch {
	case cfg.MaxOrphanBlocks == unsetFlag:
		cfg.MaxOrphanBlocks = params.MaxOrphanBlocks
	case cfg.MaxOrphanBlocks < 0:
		return errors.Errorf("%s: The maxorphanblocks option may not be negative -- parsed [%d]",
			funcName, cfg.MaxOrphanBlocks)
	default:
		params.MaxOrphanBlocks = cfg.MaxOrphanBlocks
	}

	if cfg.ImportFile != "" {
		cfg.ImportFile = cleanAndExpandPath(cfg.ImportFile)
		if _, err := os.Stat(cfg.ImportFile); err != nil {
			return errors.Errorf("%s: The specified block file [%s] does not exist", funcName, cfg.ImportFile)
		}
	}

	if cfg.Profile != "" {
		profilePort, err := strconv.Atoi(cfg.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			return errors.Errorf("%s: The profile port must be between 1024 and 65535", funcName)
		}
	}
	return nil
}

// createDefaultConfigFile writes the sample configuration to destinationPath.
// Every option in it is commented out.
func createDefaultConfigFile(destinationPath string) error {
	err := os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(destinationPath, []byte(sampleConfig), 0600))
}
