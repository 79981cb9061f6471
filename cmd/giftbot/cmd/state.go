package cmd

import (
	"io"

	"github.com/kamir/giftbot/internal/config"
	"github.com/kamir/giftbot/internal/cursor"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openCursor opens the cursor store the config selects.
func openCursor(cfg *config.Config) (cursor.Store, io.Closer, error) {
	if err := config.EnsureDir(cfg.State.Dir); err != nil {
		return nil, nil, err
	}
	if cfg.State.CursorStore == config.CursorSQLite {
		s, err := cursor.OpenSQLiteStore(cfg.State.CursorPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return cursor.NewFileStore(cfg.State.CursorPath), nopCloser{}, nil
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatalf("Config error: %v", err)
	}
	return cfg
}
