// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/metric"
	"go.uber.org/zap"
)

const (
	DynamoDB = "dynamo"

	defaultTable      = "sirihub"
	defaultMaxRetries = 3
)

var ErrNilMeasures = errors.New("measures for DB cannot be nil")

// Config contains the settings of the DynamoDB table backing the cluster map.
// The table must have a string hash key "bucket", a string range key "id" and
// TTL enabled on the "expires" attribute.
type Config struct {
	// Table is the name of the table. (Optional) Defaults to "sirihub".
	Table string

	// Endpoint overrides the service endpoint, e.g. for DynamoDB local.
	Endpoint string

	// Region is the AWS region.
	Region string

	// MaxRetries is the maximum number of attempts per request.
	// (Optional) Defaults to 3.
	MaxRetries int

	// AccessKey is the AWS AccessKey credential.
	AccessKey string

	// SecretKey is the AWS SecretKey credential.
	SecretKey string
}

// DynamoClient implements coordinator.Backend on a DynamoDB table.
type DynamoClient struct {
	s        service
	measures *metric.Measures
}

var _ coordinator.Backend = (*DynamoClient)(nil)

// NewDynamoDB returns a backend for the given configuration.
func NewDynamoDB(config Config, measures *metric.Measures, logger *zap.Logger) (*DynamoClient, error) {
	if measures == nil {
		return nil, ErrNilMeasures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validateConfig(&config)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
		awsconfig.WithRetryMaxAttempts(config.MaxRetries),
	}
	if config.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	c := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})

	var svc service = &executor{
		c:         c,
		tableName: config.Table,
		now:       time.Now,
	}
	svc = newLoggingService(logger, svc)
	return &DynamoClient{
		s:        svc,
		measures: measures,
	}, nil
}

func (d *DynamoClient) Push(ctx context.Context, key coordinator.Key, item coordinator.Item) error {
	consumedCapacity, err := d.s.Push(ctx, key, item)
	d.consumed(coordinator.InsertType, consumedCapacity)
	return err
}

func (d *DynamoClient) PushIf(ctx context.Context, key coordinator.Key, item coordinator.Item, expected []byte) (bool, error) {
	ok, consumedCapacity, err := d.s.PushIf(ctx, key, item, expected)
	d.consumed(coordinator.InsertType, consumedCapacity)
	return ok, err
}

func (d *DynamoClient) Get(ctx context.Context, key coordinator.Key) (coordinator.Item, error) {
	item, consumedCapacity, err := d.s.Get(ctx, key)
	d.consumed(coordinator.ReadType, consumedCapacity)
	return item, err
}

func (d *DynamoClient) Delete(ctx context.Context, key coordinator.Key) error {
	consumedCapacity, err := d.s.Delete(ctx, key)
	d.consumed(coordinator.DeleteType, consumedCapacity)
	return err
}

func (d *DynamoClient) DeleteIf(ctx context.Context, key coordinator.Key, expected []byte) (bool, error) {
	ok, consumedCapacity, err := d.s.DeleteIf(ctx, key, expected)
	d.consumed(coordinator.DeleteType, consumedCapacity)
	return ok, err
}

func (d *DynamoClient) GetAll(ctx context.Context, bucket string) (map[string]coordinator.Item, error) {
	items, consumedCapacity, err := d.s.GetAll(ctx, bucket)
	d.consumed(coordinator.ReadType, consumedCapacity)
	return items, err
}

func (d *DynamoClient) consumed(opType string, consumedCapacity *types.ConsumedCapacity) {
	if consumedCapacity == nil || consumedCapacity.CapacityUnits == nil {
		return
	}
	d.measures.CapacityUnitConsumed.With(prometheus.Labels{metric.TypeLabel: opType}).Add(*consumedCapacity.CapacityUnits)
}

func validateConfig(config *Config) {
	if config.Table == "" {
		config.Table = defaultTable
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaultMaxRetries
	}
}
