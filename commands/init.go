package commands

import (
	"context"
	"errors"
	"os"

	"qnet/config"

	log "github.com/sirupsen/logrus"
)

// RunInit writes a config file with default settings, unless one already exists
func RunInit(ctx context.Context, cfg *config.Config, path string) {
	if _, err := os.Stat(path); err == nil {
		log.Fatalf("Config file %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to check config file: %v", err)
	}

	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}
	log.Infof("Wrote default config to %s", path)
}
