// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "zecwallet.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "zecwallet.log"
	defaultDBTimeout      = 60 * time.Second

	walletDbName = "notes.db"
)

var (
	zecwalletHomeDir  = btcutil.AppDataDir("zecwallet", false)
	defaultConfigFile = filepath.Join(zecwalletHomeDir, defaultConfigFilename)
	defaultDataDir    = zecwalletHomeDir
	defaultLogDir     = filepath.Join(zecwalletHomeDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Create      bool   `long:"create" description:"Create the note database if it does not exist"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the note database"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      string `long:"logdir" description:"Directory to log output"`

	// Note store options
	MaxRewindDepth int32         `long:"maxrewinddepth" description:"Number of blocks behind the chain tip that reorg recovery state is retained for"`
	DBTimeout      time.Duration `long:"dbtimeout" description:"Timeout to wait for the database file lock"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the passed
// path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = homeDir + path[1:]
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile:     defaultConfigFile,
		DataDir:        defaultDataDir,
		DebugLevel:     defaultLogLevel,
		LogDir:         defaultLogDir,
		MaxRewindDepth: 0,
		DBTimeout:      defaultDBTimeout,
	}

	// Pre-parse the command line options to see if an alternative config
	// file was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if preCfg.ShowVersion {
		fmt.Printf("%s version %s\n", filepath.Base(os.Args[0]),
			version())
		os.Exit(0)
	}

	// Load additional config from file.  Missing config files are only an
	// error when one was explicitly requested.
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		if preCfg.ConfigFile != defaultConfigFile {
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.MaxRewindDepth < 0 {
		err := fmt.Errorf("maxrewinddepth must not be negative")
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Initialize log rotation and set the requested logging level now that
	// the log directory is known.  After this it is safe to log.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if !validLogLevel(cfg.DebugLevel) {
		err := fmt.Errorf("the specified debug level [%v] is invalid",
			cfg.DebugLevel)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}
	setLogLevels(cfg.DebugLevel)

	return &cfg, remainingArgs, nil
}
