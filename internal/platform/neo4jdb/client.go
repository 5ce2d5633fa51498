// Package neo4jdb owns the Neo4j driver used by the person graph.
package neo4jdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

func (c Config) withDefaults() Config {
	c.URI = strings.TrimSpace(c.URI)
	if c.User == "" {
		c.User = "neo4j"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 50
	}
	return c
}

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string

	log        *logger.Logger
	schemaOnce sync.Once
}

// New returns (nil, nil) when no URI is configured. Callers treat a nil
// client as a disabled graph.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, errors.New("neo4jdb: logger required")
	}
	cfg = cfg.withDefaults()
	if cfg.URI == "" {
		return nil, nil
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(nc *neo4j.Config) {
		nc.MaxConnectionPoolSize = cfg.MaxPoolSize
		nc.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: driver for %s: %w", cfg.URI, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(pingCtx); err != nil {
		_ = driver.Close(context.Background())
		return nil, fmt.Errorf("neo4jdb: %s unreachable: %w", cfg.URI, err)
	}

	c := &Client{Driver: driver, Database: cfg.Database, log: log.With("client", "Neo4jDB")}
	c.log.Info("Neo4j connected", "uri", cfg.URI, "database", cfg.Database)
	return c, nil
}

func (c *Client) Enabled() bool { return c != nil && c.Driver != nil }

// EnsureSchema runs the given statements once per client. Failures are
// logged; writes still proceed without the constraints.
func (c *Client) EnsureSchema(ctx context.Context, statements ...string) {
	if !c.Enabled() {
		return
	}
	c.schemaOnce.Do(func() {
		session := c.session(ctx, neo4j.AccessModeWrite)
		defer session.Close(ctx)
		for _, stmt := range statements {
			res, err := session.Run(ctx, stmt, nil)
			if err == nil {
				_, err = res.Consume(ctx)
			}
			if err != nil {
				c.log.Warn("neo4j schema statement failed", "error", err)
			}
		}
	})
}

// Write runs fn in one managed write transaction.
func (c *Client) Write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	if !c.Enabled() {
		return errors.New("neo4jdb: client closed")
	}
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

// Exec runs a single statement and drains its result.
func Exec(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.Database})
}

func (c *Client) Close(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
