// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package kafka feeds deliveries published on Kafka topics into the ingest
// layer. Each record carries one JSON encoded ServiceDelivery and names its
// subscription in the subscription-id header or, failing that, the record key.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/model"
	"go.uber.org/zap"
)

// SubscriptionHeader names the subscription a record belongs to.
const SubscriptionHeader = "subscription-id"

var (
	ErrNoBrokers        = errors.New("kafka brokers are required")
	ErrNoTopics         = errors.New("kafka topics are required")
	ErrNoGroup          = errors.New("kafka group id is required")
	ErrNilDeliverer     = errors.New("deliverer cannot be nil")
	ErrNoSubscriptionID = errors.New("record carries no subscription id")
)

// Config is the "kafka" configuration section.
type Config struct {
	Enabled  bool
	Brokers  []string
	Topics   []string
	GroupID  string
	ClientID string

	// MaxPollRecords bounds one poll.
	// (Optional). Defaults to 500.
	MaxPollRecords int

	// FetchMaxWait is how long a broker may hold a fetch.
	// (Optional). Defaults to 1 second.
	FetchMaxWait time.Duration

	// RetryBackoff is the first pause between delivery attempts.
	// (Optional). Defaults to 200 milliseconds.
	RetryBackoff time.Duration

	// MaxRetries bounds the attempts for one record after the first.
	// (Optional). Defaults to 5.
	MaxRetries int

	TLS TLSConfig
}

type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
}

func (c *Config) withDefaults() {
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = 500
	}
	if c.FetchMaxWait <= 0 {
		c.FetchMaxWait = time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if len(c.Topics) == 0 {
		return ErrNoTopics
	}
	if c.GroupID == "" {
		return ErrNoGroup
	}
	return nil
}

// Deliverer accepts decoded deliveries. *ingest.Ingestor implements it.
type Deliverer interface {
	Deliver(ctx context.Context, subscriptionID string, d *model.ServiceDelivery) (ingest.Report, error)
}

// Consumer polls the configured topics as part of a consumer group. Offsets
// are committed once a record was delivered or found undecodable. A record
// that cannot be delivered stops its partition for the rest of the poll and
// the partition is rewound so the record is fetched again.
type Consumer struct {
	config    Config
	deliverer Deliverer
	measures  *Measures
	logger    *zap.Logger

	poll           func(context.Context, int) kgo.Fetches
	allowRebalance func()
	markCommit     func(...*kgo.Record)
	commitMarked   func(context.Context) error
	setOffsets     func(map[string]map[int32]kgo.EpochOffset)
	closeClient    func()
}

func NewConsumer(config Config, deliverer Deliverer, measures *Measures, logger *zap.Logger, opts ...kgo.Opt) (*Consumer, error) {
	config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deliverer == nil {
		return nil, ErrNilDeliverer
	}
	if measures == nil {
		measures = NewTestMeasures()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(config.Brokers...),
		kgo.ConsumerGroup(config.GroupID),
		kgo.ConsumeTopics(config.Topics...),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.FetchMaxWait(config.FetchMaxWait),
	}
	if config.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(config.ClientID))
	}
	if config.TLS.Enabled {
		kopts = append(kopts, kgo.DialTLSConfig(&tls.Config{InsecureSkipVerify: config.TLS.InsecureSkipVerify}))
	}
	kopts = append(kopts, opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}
	return &Consumer{
		config:         config,
		deliverer:      deliverer,
		measures:       measures,
		logger:         logger,
		poll:           cl.PollRecords,
		allowRebalance: cl.AllowRebalance,
		markCommit:     cl.MarkCommitRecords,
		commitMarked:   cl.CommitMarkedOffsets,
		setOffsets:     cl.SetOffsets,
		closeClient:    cl.Close,
	}, nil
}

// Run polls until ctx is cancelled or the client is closed, then closes the
// client.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.closeClient()
	for {
		if ctx.Err() != nil {
			return nil
		}
		fetches := c.poll(ctx, c.config.MaxPollRecords)
		if fetches.IsClientClosed() {
			return nil
		}
		c.process(ctx, fetches)
		c.allowRebalance()
	}
}

// process handles every record of one poll and commits what was handled.
func (c *Consumer) process(ctx context.Context, fetches kgo.Fetches) {
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
			continue
		}
		c.logger.Error("kafka fetch failed", zap.String("topic", fe.Topic), zap.Int32("partition", fe.Partition), zap.Error(fe.Err))
	}

	marked := 0
	failed := make(map[string]map[int32]kgo.EpochOffset)
	fetches.EachRecord(func(rec *kgo.Record) {
		if ctx.Err() != nil {
			return
		}
		if _, stopped := failed[rec.Topic][rec.Partition]; stopped {
			return
		}
		if c.handle(ctx, rec) {
			c.markCommit(rec)
			marked++
			return
		}
		if failed[rec.Topic] == nil {
			failed[rec.Topic] = make(map[int32]kgo.EpochOffset)
		}
		failed[rec.Topic][rec.Partition] = kgo.EpochOffset{Epoch: rec.LeaderEpoch, Offset: rec.Offset}
	})
	if marked > 0 {
		if err := c.commitMarked(ctx); err != nil {
			c.logger.Error("failed to commit kafka offsets", zap.Error(err))
		}
	}
	if len(failed) > 0 {
		for topic, partitions := range failed {
			for partition, eo := range partitions {
				c.logger.Warn("rewinding kafka partition", zap.String("topic", topic), zap.Int32("partition", partition), zap.Int64("offset", eo.Offset))
			}
		}
		c.setOffsets(failed)
	}
}

// handle delivers one record and reports whether its offset may be committed.
func (c *Consumer) handle(ctx context.Context, rec *kgo.Record) bool {
	logger := c.logger.With(zap.String("topic", rec.Topic), zap.Int32("partition", rec.Partition), zap.Int64("offset", rec.Offset))

	id, d, err := decode(rec)
	if err != nil {
		logger.Warn("skipping undecodable kafka record", zap.Error(err))
		c.measures.Records.WithLabelValues(UndecodableRecord).Inc()
		return true
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxRetries)), ctx)

	err = backoff.RetryNotify(
		func() error {
			_, err := c.deliverer.Deliver(ctx, id, d)
			return err
		},
		policy,
		func(err error, wait time.Duration) {
			logger.Debug("retrying kafka delivery", zap.Duration("wait", wait), zap.Error(err))
		},
	)
	if err != nil {
		logger.Error("failed to deliver kafka record", zap.String("subscriptionId", id), zap.Error(err))
		c.measures.Records.WithLabelValues(FailedRecord).Inc()
		return false
	}
	c.measures.Records.WithLabelValues(DeliveredRecord).Inc()
	return true
}

func decode(rec *kgo.Record) (string, *model.ServiceDelivery, error) {
	id := ""
	for _, h := range rec.Headers {
		if h.Key == SubscriptionHeader {
			id = string(h.Value)
			break
		}
	}
	if id == "" {
		id = string(rec.Key)
	}
	if id == "" {
		return "", nil, ErrNoSubscriptionID
	}
	var d model.ServiceDelivery
	if err := json.Unmarshal(rec.Value, &d); err != nil {
		return "", nil, fmt.Errorf("decode service delivery: %w", err)
	}
	return id, &d, nil
}
