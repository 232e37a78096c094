package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"mentor-ai/internal/chat"
	"mentor-ai/internal/config"
	"mentor-ai/internal/integrations/education"
	"mentor-ai/internal/store"
)

const sqliteFile = "conversations.db"

// Client is the wired terminal client.
type Client struct {
	Controller *chat.Controller
	closers    []io.Closer
}

// Close releases the durable slot.
func (c *Client) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenSlot returns the durable slot selected by cfg. The closer is nil when
// the slot holds no resources.
func OpenSlot(cfg config.StorageConfig) (store.Slot, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemorySlot(), nil, nil
	case config.BackendFile:
		slot, err := store.NewFileSlot(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return slot, nil, nil
	case config.BackendSQLite:
		slot, err := store.NewSQLiteSlot(filepath.Join(cfg.Dir, sqliteFile))
		if err != nil {
			return nil, nil, err
		}
		return slot, slot, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown storage backend %q", cfg.Backend)
	}
}

// BuildClient wires slot, store, tutoring client and controller, then loads
// saved conversations.
func BuildClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	slot, closer, err := OpenSlot(cfg.Storage)
	if err != nil {
		return nil, err
	}
	c := &Client{}
	if closer != nil {
		c.closers = append(c.closers, closer)
	}

	st, err := store.New(slot, store.WithKey(cfg.Storage.Key), store.WithLogger(logger))
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	asker, err := education.NewClient(cfg.API.BaseURL,
		education.WithHTTPClient(&http.Client{Timeout: cfg.Timeout()}),
		education.WithMaxQuestionLength(cfg.API.MaxQuestionLength),
	)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	ctrl, err := chat.New(st, asker, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	ctrl.Initialize()
	c.Controller = ctrl
	return c, nil
}

// OpenLogFile opens path for appending, creating its directory.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("app: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("app: open log file: %w", err)
	}
	return f, nil
}
