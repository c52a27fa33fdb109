package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fastqueue/fastqueue/internal/config"
	"github.com/fastqueue/fastqueue/pkg/fastqueue"
)

func queueDir(dir, name string) string {
	return filepath.Join(dir, name)
}

func loadOrDefaultConfig(qDir string) (config.Config, error) {
	cfgPath := filepath.Join(qDir, config.FileName)

	if _, err := os.Stat(cfgPath); err == nil {
		return config.Load(cfgPath)
	}

	return config.Default(qDir), nil
}

func openQueue(dir, name string) (*fastqueue.Queue, error) {
	qDir := queueDir(dir, name)

	cfg, err := loadOrDefaultConfig(qDir)
	if err != nil {
		return nil, fmt.Errorf("fastqueue: %w", err)
	}

	return fastqueue.Open(fastqueue.Options{
		Dir:          qDir,
		DataPageSize: cfg.DataPageSize,
		MetaPageSize: cfg.MetaPageSize,
		CacheTTL:     time.Duration(cfg.CacheTTLMillis) * time.Millisecond,
	})
}

func requireArgs(args []string, n int) ([]string, error) {
	if len(args) < n {
		return nil, errMissingArgs
	}

	return args, nil
}
