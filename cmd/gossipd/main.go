package main

import (
	"flag"
	"os"
	"path/filepath"

	"gossipchain/config"
	"gossipchain/core"
	"gossipchain/observability/logging"
	"gossipchain/rpc"
	"gossipchain/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("gossipd", "").Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := logging.SetupWithOptions("gossipd", cfg.NetworkName, logging.Options{
		FilePath:  cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db)

	if cfg.GenesisFile != "" {
		if _, statErr := os.Stat(cfg.GenesisFile); statErr == nil {
			gen, err := core.LoadGenesis(cfg.GenesisFile)
			if err != nil {
				logger.Error("failed to load genesis", "path", cfg.GenesisFile, "error", err)
				os.Exit(1)
			}
			if err := node.ApplyGenesis(gen); err != nil {
				logger.Error("failed to apply genesis", "path", cfg.GenesisFile, "error", err)
				os.Exit(1)
			}
		}
	}

	server := rpc.NewServer(node, logger, cfg.RPCToken)
	logger.Info("gossipd starting",
		"rpc", cfg.RPCAddress,
		"network", cfg.NetworkName,
		"data_dir", cfg.DataDir,
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
