// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/metric"
	"go.uber.org/zap"
)

func TestCreateCassandraClientValidation(t *testing.T) {
	tcs := []struct {
		Description string
		Config      Config
		Measures    *metric.Measures
		ExpectedErr error
	}{
		{
			Description: "No hosts",
			Measures:    metric.NewTestMeasures(),
			ExpectedErr: ErrNoHosts,
		},
		{
			Description: "Nil measures",
			Config:      Config{Hosts: []string{"localhost"}},
			ExpectedErr: ErrNilMeasures,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			_, err := CreateCassandraClient(tc.Config, tc.Measures, nil)
			assert.ErrorIs(t, err, tc.ExpectedErr)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	config := Config{NumRetries: -1}
	validateConfig(&config)
	assert.Equal(t, Config{
		Database:        defaultDatabase,
		OpTimeout:       defaultOpTimeout,
		NumRetries:      defaultNumRetries,
		WaitTimeMult:    defaultWaitTimeMult,
		MaxConnsPerHost: defaultMaxNumberConnsPerHost,
	}, config)
}

func TestTTLSeconds(t *testing.T) {
	tcs := []struct {
		Description string
		TTL         time.Duration
		Expected    int
	}{
		{Description: "No expiry", TTL: 0, Expected: 0},
		{Description: "Negative", TTL: -time.Second, Expected: 0},
		{Description: "Sub second rounds up", TTL: 10 * time.Millisecond, Expected: 1},
		{Description: "Exact", TTL: 30 * time.Second, Expected: 30},
		{Description: "Fractional rounds up", TTL: 1500 * time.Millisecond, Expected: 2},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert.Equal(t, tc.Expected, ttlSeconds(tc.TTL))
		})
	}
}

func TestPing(t *testing.T) {
	tcs := []struct {
		Description     string
		PingErr         error
		ExpectedSuccess float64
		ExpectedFailure float64
	}{
		{
			Description:     "Healthy",
			ExpectedSuccess: 1,
		},
		{
			Description:     "Closed",
			PingErr:         errServerClosed,
			ExpectedFailure: 1,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			m := new(mockDB)
			m.On("Ping").Return(tc.PingErr)
			measures := metric.NewTestMeasures()
			c := &CassandraClient{dbStore: m, logger: zap.NewNop(), measures: measures}

			err := c.Ping()
			if tc.PingErr != nil {
				assert.True(errors.Is(err, tc.PingErr))
			} else {
				assert.NoError(err)
			}
			assert.Equal(tc.ExpectedSuccess, testutil.ToFloat64(measures.BackendSuccessCount.WithLabelValues(coordinator.PingType)))
			assert.Equal(tc.ExpectedFailure, testutil.ToFloat64(measures.BackendFailureCount.WithLabelValues(coordinator.PingType)))
		})
	}
}

func TestDelegation(t *testing.T) {
	require := require.New(t)
	m := new(mockDB)
	c := &CassandraClient{dbStore: m, logger: zap.NewNop(), measures: metric.NewTestMeasures()}
	key := coordinator.Key{Bucket: "situations", ID: "ENT:SX:1"}
	item := coordinator.Item{Data: []byte("payload"), TTL: time.Minute}

	m.On("PushIf", key, item, []byte(nil)).Return(true, nil)
	m.On("DeleteIf", key, []byte("stale")).Return(false, nil)
	m.On("Get", key).Return(item, nil)

	ctx := context.Background()
	ok, err := c.PushIf(ctx, key, item, nil)
	require.NoError(err)
	require.True(ok)
	got, err := c.Get(ctx, key)
	require.NoError(err)
	require.Equal(item, got)
	ok, err = c.DeleteIf(ctx, key, []byte("stale"))
	require.NoError(err)
	require.False(ok)
	m.AssertExpectations(t)
}
