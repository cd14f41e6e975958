// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/decred/cfmatch/internal/version"
	"github.com/decred/cfmatch/kernels"
	"github.com/decred/cfmatch/sampleconfig"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename  = "cfmatch.conf"
	defaultLogLevel        = "info"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "cfmatch.log"
	defaultLogSize         = "10M"
	defaultCorpusCacheSize = 4
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("cfmatch", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for cfmatch.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	HomeDir     string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`

	// Logging settings.
	LogDir        string `long:"logdir" description:"Directory to log output"`
	LogSize       string `long:"logsize" description:"Maximum size of log file before it is rotated"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// Network settings.
	TestNet bool `long:"testnet" description:"Decode addresses for the test network"`
	SimNet  bool `long:"simnet" description:"Decode addresses for the simulation test network"`
	RegNet  bool `long:"regnet" description:"Decode addresses for the regression test network"`

	// Watched outputs.
	Addresses []string `short:"a" long:"address" description:"Watch the payment script of an address; may be specified multiple times"`
	Scripts   []string `long:"script" description:"Watch a hex encoded output script; may be specified multiple times"`

	// Scanning.
	Filters string `short:"f" long:"filters" description:"File of block filters to scan, - for stdin; .zst and .lz4 files are decompressed"`
	Output  string `short:"o" long:"output" description:"Write matching block hashes to this file instead of stdout"`

	// Compute device.
	ExecWidth   int    `long:"execwidth" description:"Thread execution width of the host device (0 selects based on the CPU)"`
	Workers     int    `long:"workers" description:"Maximum goroutines per dispatch (0 selects GOMAXPROCS)"`
	CorpusCache uint32 `long:"corpuscache" description:"Number of built corpora kept for reuse (0 disables the cache)"`

	// Profiling.
	Profile                 string `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE port must be between 1024 and 65535"`
	ProfileAllowNonLoopback bool   `long:"profileallownonloopback" description:"Allow the profile server to listen on non loopback addresses"`
	CPUProfile              string `long:"cpuprofile" description:"Write CPU profile to the specified file"`

	// The following fields are derived from the above fields by loadConfig.
	params     *chaincfg.Params
	corpus     [][]byte
	logSizeKiB int64
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser to
	// otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// parseLogSize parses a log size with an optional K, M or G suffix into KiB.
// A size without a suffix is in KiB.
func parseLogSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		s, multiplier = s[:len(s)-1], 1<<10
	case strings.HasSuffix(s, "G"):
		s, multiplier = s[:len(s)-1], 1<<20
	}
	size, err := strconv.ParseInt(s, 10, 64)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("invalid log size %q", s)
	}
	return size * multiplier, nil
}

// decodeCorpus returns the output scripts to watch for the configured
// addresses followed by the configured scripts.
func decodeCorpus(addrs, scripts []string, params *chaincfg.Params) ([][]byte, error) {
	corpus := make([][]byte, 0, len(addrs)+len(scripts))
	for _, addr := range addrs {
		a, err := stdaddr.DecodeAddress(addr, params)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", addr, err)
		}
		_, script := a.PaymentScript()
		if len(script) > kernels.MaxOpcodeLen {
			return nil, fmt.Errorf("address %q has a %d byte payment script "+
				"which exceeds the maximum of %d", addr, len(script),
				kernels.MaxOpcodeLen)
		}
		corpus = append(corpus, script)
	}
	for _, s := range scripts {
		script, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid script %q: %w", s, err)
		}
		if len(script) == 0 || len(script) > kernels.MaxOpcodeLen {
			return nil, fmt.Errorf("script %q is %d bytes which is not in "+
				"the range 1-%d", s, len(script), kernels.MaxOpcodeLen)
		}
		corpus = append(corpus, script)
	}
	return corpus, nil
}

// createDefaultConfigFile creates the default config file from the sample
// config.
func createDefaultConfigFile(destPath string) error {
	// Create the destination directory if it does not exist.
	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(sampleconfig.Cfmatch()), 0600)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in cfmatch functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
//
// A help request is returned as a *flags.Error of type flags.ErrHelp and a
// version request as a config with ShowVersion set, so the caller decides how
// to exit.
func loadConfig(appName string, args []string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:     defaultHomeDir,
		ConfigFile:  defaultConfigFile,
		LogDir:      defaultLogDir,
		LogSize:     defaultLogSize,
		DebugLevel:  defaultLogLevel,
		CorpusCache: defaultCorpusCacheSize,
	}

	// Pre-parse the command line options to see if an alternative config
	// file, home directory, or the version flag was specified.  Any errors
	// aside from the help message error can be ignored here since they will
	// be caught by the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		return &preCfg, nil, nil
	}

	// Update the home directory if specified.  Since the home directory is
	// updated, other variables need to be updated to reflect the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(cfg.ConfigFile) {
		if err := createDefaultConfigFile(cfg.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config file: "+
				"%v\n", err)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default&^flags.PrintErrors)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			err = fmt.Errorf("error parsing config file: %w", err)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = chaincfg.MainNetParams()
	if cfg.TestNet {
		numNets++
		cfg.params = chaincfg.TestNet3Params()
	}
	if cfg.SimNet {
		numNets++
		cfg.params = chaincfg.SimNetParams()
	}
	if cfg.RegNet {
		numNets++
		cfg.params = chaincfg.RegNetParams()
	}
	if numNets > 1 {
		return nil, nil, errors.New("the testnet, regnet, and simnet params " +
			"can't be used together -- choose one of the three")
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, err
	}

	cfg.logSizeKiB, err = parseLogSize(cfg.LogSize)
	if err != nil {
		return nil, nil, err
	}

	// Append the network type to the log directory so it is "namespaced" per
	// network in the same fashion as the data directory.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.params.Name)

	if cfg.Filters == "" {
		return nil, nil, errors.New("no filter file specified")
	}
	if cfg.Filters != "-" {
		cfg.Filters = cleanAndExpandPath(cfg.Filters)
	}
	cfg.Output = cleanAndExpandPath(cfg.Output)

	if cfg.ExecWidth < 0 {
		str := "the execution width may not be negative -- parsed [%d]"
		return nil, nil, fmt.Errorf(str, cfg.ExecWidth)
	}
	if cfg.Workers < 0 {
		str := "the number of workers may not be negative -- parsed [%d]"
		return nil, nil, fmt.Errorf(str, cfg.Workers)
	}

	// Validate the profile server address.
	if cfg.Profile != "" {
		cfg.Profile = portToLocalHostAddr(cfg.Profile)
		if err := validateProfileAddr(cfg.Profile); err != nil {
			return nil, nil, fmt.Errorf("invalid profile address: %w", err)
		}
	}
	cfg.CPUProfile = cleanAndExpandPath(cfg.CPUProfile)

	cfg.corpus, err = decodeCorpus(cfg.Addresses, cfg.Scripts, cfg.params)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.corpus) == 0 {
		return nil, nil, errors.New("no addresses or scripts to watch")
	}

	// Initialize log rotation.  After the log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLogging {
		initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename),
			cfg.logSizeKiB)
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid options.
	// Note this should go directly before the return.
	if configFileError != nil {
		cfmtLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// versionString returns the version line shown for the version flag.
func versionString(appName string) string {
	return fmt.Sprintf("%s version %s (Go version %s %s/%s)", appName,
		version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
