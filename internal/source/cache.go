// Package source manages live backend connections keyed by source alias.
// A connection is opened on first use and reused until Clear, which every
// run path is expected to reach.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/leapstack-labs/leapbase/internal/schema"
	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
)

type conn struct {
	backend     backend.Backend
	kind        string
	connectedAt time.Time
	inTx        bool
}

// Info describes one live connection for diagnostics.
type Info struct {
	Alias         string
	Kind          string
	ConnectedAt   time.Time
	InTransaction bool
}

// Cache lazily connects backends per source alias and tracks their
// transaction state.
type Cache struct {
	configs map[string]core.BackendConfig
	schemas *schema.Loader
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

// NewCache creates a cache over the configured source aliases.
// If logger is nil, a discard logger is used.
func NewCache(configs map[string]core.BackendConfig, schemas *schema.Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		configs: configs,
		schemas: schemas,
		logger:  logger,
		conns:   make(map[string]*conn),
	}
}

// Get returns the live backend for an alias, connecting on first use.
func (c *Cache) Get(ctx context.Context, alias string) (backend.Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.get(ctx, alias)
	if err != nil {
		return nil, err
	}
	return entry.backend, nil
}

func (c *Cache) get(ctx context.Context, alias string) (*conn, error) {
	if entry, ok := c.conns[alias]; ok {
		return entry, nil
	}

	cfg, ok := c.configs[alias]
	if !ok {
		return nil, &core.ConfigError{Field: alias, Message: "unknown source alias"}
	}
	s, err := c.schemas.Load(alias)
	if err != nil {
		return nil, err
	}

	b, err := backend.New(cfg, c.logger)
	if err != nil {
		return nil, err
	}
	if err := b.Connect(ctx, cfg, s); err != nil {
		return nil, err
	}

	entry := &conn{backend: b, kind: cfg.Kind, connectedAt: time.Now().UTC()}
	c.conns[alias] = entry
	c.logger.Debug("source connected", "alias", alias, "kind", cfg.Kind)
	return entry, nil
}

// Set stores a pre-connected backend under an alias, replacing and
// closing any existing connection for it.
func (c *Cache) Set(alias string, b backend.Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.conns[alias]; ok {
		if err := prev.backend.Close(); err != nil {
			c.logger.Warn("closing replaced connection", "alias", alias, "error", err)
		}
	}
	c.conns[alias] = &conn{backend: b, kind: b.Kind(), connectedAt: time.Now().UTC()}
}

// Begin opens a transaction on the alias's connection. Opening twice is
// an error.
func (c *Cache) Begin(ctx context.Context, alias string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.get(ctx, alias)
	if err != nil {
		return err
	}
	if entry.inTx {
		return fmt.Errorf("source %s: transaction already open", alias)
	}
	if err := entry.backend.Begin(ctx); err != nil {
		return err
	}
	entry.inTx = true
	return nil
}

// Commit commits the alias's open transaction.
func (c *Cache) Commit(alias string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.conns[alias]
	if !ok || !entry.inTx {
		return fmt.Errorf("source %s: no open transaction", alias)
	}
	entry.inTx = false
	return entry.backend.Commit()
}

// Rollback rolls back the alias's open transaction.
func (c *Cache) Rollback(alias string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.conns[alias]
	if !ok || !entry.inTx {
		return fmt.Errorf("source %s: no open transaction", alias)
	}
	entry.inTx = false
	return entry.backend.Rollback()
}

// CommitAll commits every open transaction. The first error is returned
// after every alias has been attempted.
func (c *Cache) CommitAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for _, alias := range c.sortedAliases() {
		entry := c.conns[alias]
		if !entry.inTx {
			continue
		}
		entry.inTx = false
		if err := entry.backend.Commit(); err != nil && first == nil {
			first = fmt.Errorf("commit %s: %w", alias, err)
		}
	}
	return first
}

// RollbackAll rolls back every open transaction, best effort.
func (c *Cache) RollbackAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, alias := range c.sortedAliases() {
		entry := c.conns[alias]
		if !entry.inTx {
			continue
		}
		entry.inTx = false
		if err := entry.backend.Rollback(); err != nil {
			c.logger.Warn("rollback failed", "alias", alias, "error", err)
		}
	}
}

// Clear rolls back open transactions and closes every connection, best
// effort. The cache is empty and reusable afterwards.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, alias := range c.sortedAliases() {
		entry := c.conns[alias]
		if entry.inTx {
			if err := entry.backend.Rollback(); err != nil {
				c.logger.Warn("rollback during clear", "alias", alias, "error", err)
			}
		}
		if err := entry.backend.Close(); err != nil {
			c.logger.Warn("close during clear", "alias", alias, "error", err)
		}
		delete(c.conns, alias)
	}
	c.logger.Debug("connection cache cleared")
}

// Len returns the number of live connections.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// InTransaction reports whether the alias has an open transaction.
func (c *Cache) InTransaction(alias string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.conns[alias]
	return ok && entry.inTx
}

// List returns diagnostic info for every live connection, sorted by
// alias.
func (c *Cache) List() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]Info, 0, len(c.conns))
	for _, alias := range c.sortedAliases() {
		entry := c.conns[alias]
		infos = append(infos, Info{
			Alias:         alias,
			Kind:          entry.kind,
			ConnectedAt:   entry.connectedAt,
			InTransaction: entry.inTx,
		})
	}
	return infos
}

func (c *Cache) sortedAliases() []string {
	aliases := make([]string, 0, len(c.conns))
	for alias := range c.conns {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
