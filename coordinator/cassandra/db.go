// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"errors"
	"time"

	"emperror.dev/emperror"
	"github.com/cenkalti/backoff/v4"
	"github.com/gocql/gocql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	Yugabyte = "yugabyte"

	defaultOpTimeout             = 10 * time.Second
	defaultDatabase              = "sirihub"
	defaultNumRetries            = 0
	defaultWaitTimeMult          = 1
	defaultMaxNumberConnsPerHost = 2
	defaultPingInterval          = 5 * time.Second
)

var (
	ErrNoHosts     = errors.New("number of hosts must be > 0")
	ErrNilMeasures = errors.New("measures for DB cannot be nil")
)

type Config struct {
	// Hosts to  connect to. Must have at least one
	Hosts []string

	// Database aka Keyspace for cassandra
	Database string

	// OpTimeout
	OpTimeout time.Duration

	// SSLRootCert used for enabling tls to the cluster. SSLKey, and SSLCert must also be set.
	SSLRootCert string
	// SSLKey used for enabling tls to the cluster. SSLRootCert, and SSLCert must also be set.
	SSLKey string
	// SSLCert used for enabling tls to the cluster. SSLRootCert, and SSLRootCert must also be set.
	SSLCert string
	// If you want to verify the hostname and server cert (like a wildcard for cass cluster) then you should turn this on
	// This option is basically the inverse of InSecureSkipVerify
	// See InSecureSkipVerify in http://golang.org/pkg/crypto/tls/ for more info
	EnableHostVerification bool

	// Username to authenticate into the cluster. Password must also be provided.
	Username string
	// Password to authenticate into the cluster. Username must also be provided.
	Password string

	// NumRetries for connecting to the db
	NumRetries int

	// WaitTimeMult multiplies the wait between connection attempts.
	WaitTimeMult time.Duration

	// MaxConnsPerHost max number of connections per host
	MaxConnsPerHost int
}

// CassandraClient implements coordinator.Backend with lightweight transactions
// on Cassandra or YugabyteDB YCQL.
type CassandraClient struct {
	dbStore
	config   Config
	logger   *zap.Logger
	measures *metric.Measures
}

var _ coordinator.Backend = (*CassandraClient)(nil)

func NewCassandra(config Config, measures *metric.Measures, lc fx.Lifecycle, logger *zap.Logger) (*CassandraClient, error) {
	client, err := CreateCassandraClient(config, measures, logger)
	if err != nil {
		return nil, err
	}
	ticker := doEvery(defaultPingInterval, func(_ time.Time) {
		if err := client.Ping(); err != nil {
			client.logger.Error("ping failed", zap.Error(err))
		}
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			ticker.Stop()
			client.Close()
			return nil
		},
	})
	return client, nil
}

func doEvery(d time.Duration, f func(time.Time)) *time.Ticker {
	ticker := time.NewTicker(d)
	go func() {
		for x := range ticker.C {
			f(x)
		}
	}()
	return ticker
}

func CreateCassandraClient(config Config, measures *metric.Measures, logger *zap.Logger) (*CassandraClient, error) {
	if len(config.Hosts) == 0 {
		return nil, ErrNoHosts
	}
	if measures == nil {
		return nil, ErrNilMeasures
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validateConfig(&config)

	clusterConfig := gocql.NewCluster(config.Hosts...)
	// lightweight transactions need serial consistency for the paxos round
	clusterConfig.Consistency = gocql.LocalQuorum
	clusterConfig.SerialConsistency = gocql.LocalSerial
	clusterConfig.Keyspace = config.Database
	clusterConfig.Timeout = config.OpTimeout
	clusterConfig.NumConns = config.MaxConnsPerHost
	// let retry package handle it
	clusterConfig.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 1}
	// setup ssl
	if config.SSLRootCert != "" && config.SSLCert != "" && config.SSLKey != "" {
		clusterConfig.SslOpts = &gocql.SslOptions{
			CertPath:               config.SSLCert,
			KeyPath:                config.SSLKey,
			CaPath:                 config.SSLRootCert,
			EnableHostVerification: config.EnableHostVerification,
		}
	}
	// setup authentication
	if config.Username != "" && config.Password != "" {
		clusterConfig.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	var session dbStore
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = float64(config.WaitTimeMult)
	policy.RandomizationFactor = 0
	err := backoff.Retry(func() error {
		var err error
		session, err = connect(clusterConfig, logger)
		if err != nil {
			logger.Warn("connecting to database failed", zap.Strings("hosts", config.Hosts), zap.Error(err))
		}
		return err
	}, backoff.WithMaxRetries(policy, uint64(config.NumRetries)))
	if err != nil {
		return nil, emperror.WrapWith(err, "Connecting to database failed", "hosts", config.Hosts)
	}

	return &CassandraClient{
		dbStore:  session,
		config:   config,
		logger:   logger,
		measures: measures,
	}, nil
}

// Ping is for pinging the database to verify that the connection is still good.
func (s *CassandraClient) Ping() error {
	err := s.dbStore.Ping()
	if err != nil {
		s.measures.BackendFailureCount.With(prometheus.Labels{metric.TypeLabel: coordinator.PingType}).Inc()
		return emperror.WrapWith(err, "Pinging connection failed")
	}
	s.measures.BackendSuccessCount.With(prometheus.Labels{metric.TypeLabel: coordinator.PingType}).Inc()
	return nil
}

func validateConfig(config *Config) {
	if config.OpTimeout == 0 {
		config.OpTimeout = defaultOpTimeout
	}
	if config.Database == "" {
		config.Database = defaultDatabase
	}
	if config.NumRetries < 0 {
		config.NumRetries = defaultNumRetries
	}
	if config.WaitTimeMult < 1 {
		config.WaitTimeMult = defaultWaitTimeMult
	}
	if config.MaxConnsPerHost <= 0 {
		config.MaxConnsPerHost = defaultMaxNumberConnsPerHost
	}
}
