// Package scylla stores conversations and messages in ScyllaDB.
package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gocql/gocql"

	"rentme-realtime/internal/config"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewSession ensures schema exists and returns a connected Scylla session.
func NewSession(ctx context.Context, cfg config.Messaging, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(cfg.ScyllaKeyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %s", cfg.ScyllaKeyspace)
	}

	baseCluster := gocql.NewCluster(cfg.ScyllaHosts...)
	baseCluster.Timeout = cfg.ScyllaTimeout
	baseCluster.Consistency = cfg.ScyllaConsistency
	setAuth(baseCluster, cfg)

	baseSession, err := baseCluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()

	if err := ensureKeyspace(ctx, baseSession, cfg); err != nil {
		return nil, err
	}

	cluster := gocql.NewCluster(cfg.ScyllaHosts...)
	cluster.Timeout = cfg.ScyllaTimeout
	cluster.Keyspace = cfg.ScyllaKeyspace
	cluster.Consistency = cfg.ScyllaConsistency
	setAuth(cluster, cfg)

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.ScyllaKeyspace, err)
	}
	if err := ensureTables(ctx, session, cfg.ScyllaKeyspace); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.ScyllaHosts, "keyspace", cfg.ScyllaKeyspace)
	}
	return session, nil
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, cfg config.Messaging) error {
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.ScyllaKeyspace, cfg.ReplicationFactor,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

// schema lists the tables in creation order. %[1]s is the keyspace.
var schema = []struct {
	name string
	cql  string
}{
	{"conversations", `
CREATE TABLE IF NOT EXISTS %[1]s.conversations (
	id uuid PRIMARY KEY,
	booking_id text,
	owner_id text,
	renter_id text,
	created_at timestamp,
	last_message_at timestamp,
	last_message_id timeuuid,
	last_message_sender_id text,
	last_message_content text,
	last_message_type text
);`},
	{"conversations_by_booking", `
CREATE TABLE IF NOT EXISTS %[1]s.conversations_by_booking (
	booking_id text PRIMARY KEY,
	conversation_id uuid
);`},
	{"conversations_by_user", `
CREATE TABLE IF NOT EXISTS %[1]s.conversations_by_user (
	user_id text,
	conversation_id uuid,
	PRIMARY KEY (user_id, conversation_id)
);`},
	{"messages", `
CREATE TABLE IF NOT EXISTS %[1]s.messages (
	conversation_id uuid,
	message_id timeuuid,
	sender_id text,
	content text,
	message_type text,
	client_id text,
	created_at timestamp,
	is_read boolean,
	PRIMARY KEY (conversation_id, message_id)
) WITH CLUSTERING ORDER BY (message_id ASC);`},
}

func ensureTables(ctx context.Context, session *gocql.Session, keyspace string) error {
	for _, table := range schema {
		if err := session.Query(fmt.Sprintf(table.cql, keyspace)).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create %s table: %w", table.name, err)
		}
	}
	return nil
}

func setAuth(cluster *gocql.ClusterConfig, cfg config.Messaging) {
	if cfg.ScyllaUsername == "" {
		return
	}
	cluster.Authenticator = gocql.PasswordAuthenticator{
		Username: cfg.ScyllaUsername,
		Password: cfg.ScyllaPassword,
	}
	// avoid long stalls on auth/connect
	cluster.ConnectTimeout = cfg.ScyllaTimeout
	cluster.Timeout = cfg.ScyllaTimeout
}
