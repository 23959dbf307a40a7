package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocql/gocql"

	"github.com/acme/ai-call-dispatch/internal/config"
)

// Scylla holds the session backing the call attempt log.
type Scylla struct {
	session *gocql.Session
}

// NewScylla connects to the attempt-log keyspace.
func NewScylla(cfg config.ScyllaConfig) (*Scylla, error) {
	consistency, err := ParseConsistency(cfg.Consistency)
	if err != nil {
		return nil, fmt.Errorf("scylla: %w", err)
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = consistency
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{NumRetries: 3}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: create session on %v: %w", cfg.Hosts, err)
	}

	return &Scylla{session: session}, nil
}

// Session exposes the gocql session.
func (s *Scylla) Session() *gocql.Session {
	return s.session
}

// Ping reads the local node row.
func (s *Scylla) Ping(ctx context.Context) error {
	return s.session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
}

// Close shuts down the session.
func (s *Scylla) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

// ParseConsistency maps a config value such as "local_quorum" to a gocql level.
// An empty value means quorum.
func ParseConsistency(level string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_one":
		return gocql.LocalOne, nil
	case "local_quorum":
		return gocql.LocalQuorum, nil
	case "each_quorum":
		return gocql.EachQuorum, nil
	case "all":
		return gocql.All, nil
	}
	return gocql.Any, fmt.Errorf("unknown consistency %q", level)
}
