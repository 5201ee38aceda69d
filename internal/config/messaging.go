package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// Messaging holds messaging-service configuration.
type Messaging struct {
	Env               string
	GRPCAddr          string
	StoreMode         string
	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaUsername    string
	ScyllaPassword    string
	ScyllaConsistency gocql.Consistency
	ScyllaTimeout     time.Duration
	ReplicationFactor int
}

// LoadMessaging parses environment variables into a Messaging config.
func LoadMessaging() (Messaging, error) {
	cfg := Messaging{
		Env:            getEnv("APP_ENV", "dev"),
		GRPCAddr:       getEnv("GRPC_ADDR", ":9000"),
		StoreMode:      strings.ToLower(getEnv("MESSAGING_STORE", "scylla")),
		ScyllaHosts:    splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost")),
		ScyllaKeyspace: strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "rentme_messaging")),
		ScyllaUsername: strings.TrimSpace(getEnv("SCYLLA_USERNAME", "")),
		ScyllaPassword: strings.TrimSpace(getEnv("SCYLLA_PASSWORD", "")),
	}
	switch cfg.StoreMode {
	case "memory":
		return cfg, nil
	case "scylla":
	default:
		return Messaging{}, fmt.Errorf("unsupported MESSAGING_STORE: %s", cfg.StoreMode)
	}
	if cfg.ScyllaKeyspace == "" {
		return Messaging{}, fmt.Errorf("SCYLLA_KEYSPACE is required")
	}
	if len(cfg.ScyllaHosts) == 0 {
		return Messaging{}, fmt.Errorf("SCYLLA_HOSTS is required")
	}

	timeout, err := parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second)
	if err != nil {
		return Messaging{}, err
	}
	cfg.ScyllaTimeout = timeout

	consistency, err := parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum"))
	if err != nil {
		return Messaging{}, err
	}
	cfg.ScyllaConsistency = consistency

	rf, err := parseIntEnv("SCYLLA_REPLICATION_FACTOR", 1)
	if err != nil {
		return Messaging{}, err
	}
	if rf < 1 {
		rf = 1
	}
	cfg.ReplicationFactor = rf
	return cfg, nil
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
