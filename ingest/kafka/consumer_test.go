// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/model"
	"go.uber.org/zap"
)

const deliveryJSON = `{"ResponseTimestamp":"2024-03-01T12:00:00Z","VehicleActivity":[{"RecordedAtTime":"2024-03-01T12:00:00Z","ValidUntilTime":"2024-03-01T12:10:00Z"}]}`

var errUnavailable = errors.New("coordinator unavailable")

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, subscriptionID string, d *model.ServiceDelivery) (ingest.Report, error) {
	args := m.Called(ctx, subscriptionID, d)
	return args.Get(0).(ingest.Report), args.Error(1)
}

func record(offset int64, key string, headers map[string]string, value string) *kgo.Record {
	rec := &kgo.Record{Topic: "deliveries", Offset: offset, Key: []byte(key), Value: []byte(value)}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return rec
}

func fetchesOf(records ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic:      "deliveries",
			Partitions: []kgo.FetchPartition{{Partition: 0, Records: records}},
		}},
	}}
}

type commitRecorder struct {
	marked  []int64
	commits int
	rewinds []map[string]map[int32]kgo.EpochOffset
}

func newTestConsumer(d Deliverer, rec *commitRecorder) *Consumer {
	config := Config{RetryBackoff: time.Millisecond, MaxRetries: 2}
	config.withDefaults()
	return &Consumer{
		config:         config,
		deliverer:      d,
		measures:       NewTestMeasures(),
		logger:         zap.NewNop(),
		allowRebalance: func() {},
		closeClient:    func() {},
		markCommit: func(rs ...*kgo.Record) {
			for _, r := range rs {
				rec.marked = append(rec.marked, r.Offset)
			}
		},
		commitMarked: func(context.Context) error {
			rec.commits++
			return nil
		},
		setOffsets: func(offsets map[string]map[int32]kgo.EpochOffset) {
			rec.rewinds = append(rec.rewinds, offsets)
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tcs := []struct {
		Description string
		Config      Config
		ExpectedErr error
	}{
		{Description: "Disabled", Config: Config{}},
		{Description: "Valid", Config: Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topics: []string{"deliveries"}, GroupID: "sirihub"}},
		{Description: "No brokers", Config: Config{Enabled: true, Topics: []string{"deliveries"}, GroupID: "sirihub"}, ExpectedErr: ErrNoBrokers},
		{Description: "No topics", Config: Config{Enabled: true, Brokers: []string{"localhost:9092"}, GroupID: "sirihub"}, ExpectedErr: ErrNoTopics},
		{Description: "No group", Config: Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topics: []string{"deliveries"}}, ExpectedErr: ErrNoGroup},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert.ErrorIs(t, tc.Config.Validate(), tc.ExpectedErr)
		})
	}
}

func TestDefaults(t *testing.T) {
	var c Config
	c.withDefaults()
	assert := assert.New(t)
	assert.Equal(500, c.MaxPollRecords)
	assert.Equal(time.Second, c.FetchMaxWait)
	assert.Equal(200*time.Millisecond, c.RetryBackoff)
	assert.Equal(5, c.MaxRetries)
}

func TestNewConsumerErrors(t *testing.T) {
	_, err := NewConsumer(Config{Enabled: true}, &mockDeliverer{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewConsumer(Config{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilDeliverer)
}

func TestDecode(t *testing.T) {
	tcs := []struct {
		Description string
		Record      *kgo.Record
		ExpectedID  string
		ExpectedErr error
		ExpectErr   bool
	}{
		{
			Description: "Header wins over key",
			Record:      record(1, "from-key", map[string]string{SubscriptionHeader: "from-header"}, deliveryJSON),
			ExpectedID:  "from-header",
		},
		{
			Description: "Key fallback",
			Record:      record(1, "from-key", map[string]string{"other": "x"}, deliveryJSON),
			ExpectedID:  "from-key",
		},
		{
			Description: "No subscription id",
			Record:      record(1, "", nil, deliveryJSON),
			ExpectedErr: ErrNoSubscriptionID,
			ExpectErr:   true,
		},
		{
			Description: "Bad payload",
			Record:      record(1, "sub", nil, "{"),
			ExpectErr:   true,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			id, d, err := decode(tc.Record)
			if tc.ExpectErr {
				assert.Error(err)
				if tc.ExpectedErr != nil {
					assert.ErrorIs(err, tc.ExpectedErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(tc.ExpectedID, id)
			assert.Len(d.VehicleActivities, 1)
		})
	}
}

func TestProcess(t *testing.T) {
	assert := assert.New(t)
	d := new(mockDeliverer)
	d.On("Deliver", mock.Anything, "ok", mock.Anything).Return(ingest.Report{}, nil).Once()
	d.On("Deliver", mock.Anything, "flaky", mock.Anything).Return(ingest.Report{}, errUnavailable).Once()
	d.On("Deliver", mock.Anything, "flaky", mock.Anything).Return(ingest.Report{}, nil).Once()
	d.On("Deliver", mock.Anything, "down", mock.Anything).Return(ingest.Report{}, errUnavailable).Times(3)

	var rec commitRecorder
	c := newTestConsumer(d, &rec)
	c.process(context.Background(), fetchesOf(
		record(10, "", map[string]string{SubscriptionHeader: "ok"}, deliveryJSON),
		record(11, "ok", nil, "not json"),
		record(12, "flaky", nil, deliveryJSON),
		record(13, "down", nil, deliveryJSON),
	))

	d.AssertExpectations(t)
	assert.Equal([]int64{10, 11, 12}, rec.marked)
	assert.Equal(1, rec.commits)
	assert.Equal(2.0, testutil.ToFloat64(c.measures.Records.WithLabelValues(DeliveredRecord)))
	assert.Equal(1.0, testutil.ToFloat64(c.measures.Records.WithLabelValues(UndecodableRecord)))
	assert.Equal(1.0, testutil.ToFloat64(c.measures.Records.WithLabelValues(FailedRecord)))
	assert.Equal([]map[string]map[int32]kgo.EpochOffset{{"deliveries": {0: {Offset: 13}}}}, rec.rewinds)
}

func TestProcessStopsPartitionAfterFailure(t *testing.T) {
	assert := assert.New(t)
	d := new(mockDeliverer)
	d.On("Deliver", mock.Anything, "ok", mock.Anything).Return(ingest.Report{}, nil).Once()
	d.On("Deliver", mock.Anything, "down", mock.Anything).Return(ingest.Report{}, errUnavailable).Times(3)

	var rec commitRecorder
	c := newTestConsumer(d, &rec)
	failing := record(1, "down", nil, deliveryJSON)
	failing.LeaderEpoch = 4
	c.process(context.Background(), kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: "deliveries",
			Partitions: []kgo.FetchPartition{
				{Partition: 0, Records: []*kgo.Record{
					record(0, "ok", nil, deliveryJSON),
					failing,
					record(2, "later", nil, deliveryJSON),
				}},
			},
		}},
	}})

	d.AssertExpectations(t)
	d.AssertNotCalled(t, "Deliver", mock.Anything, "later", mock.Anything)
	assert.Equal([]int64{0}, rec.marked)
	assert.Equal(1, rec.commits)
	assert.Equal([]map[string]map[int32]kgo.EpochOffset{{"deliveries": {0: {Epoch: 4, Offset: 1}}}}, rec.rewinds)
}

func TestProcessOtherPartitionsContinue(t *testing.T) {
	assert := assert.New(t)
	d := new(mockDeliverer)
	d.On("Deliver", mock.Anything, "down", mock.Anything).Return(ingest.Report{}, errUnavailable).Times(3)
	d.On("Deliver", mock.Anything, "ok", mock.Anything).Return(ingest.Report{}, nil).Once()

	var rec commitRecorder
	c := newTestConsumer(d, &rec)
	failing := record(5, "down", nil, deliveryJSON)
	failing.Partition = 0
	healthy := record(7, "ok", nil, deliveryJSON)
	healthy.Partition = 1
	c.process(context.Background(), kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: "deliveries",
			Partitions: []kgo.FetchPartition{
				{Partition: 0, Records: []*kgo.Record{failing}},
				{Partition: 1, Records: []*kgo.Record{healthy}},
			},
		}},
	}})

	d.AssertExpectations(t)
	assert.Equal([]int64{7}, rec.marked)
	assert.Equal(1, rec.commits)
	assert.Equal([]map[string]map[int32]kgo.EpochOffset{{"deliveries": {0: {Offset: 5}}}}, rec.rewinds)
}

func TestProcessNothingToCommit(t *testing.T) {
	d := new(mockDeliverer)
	d.On("Deliver", mock.Anything, "down", mock.Anything).Return(ingest.Report{}, errUnavailable)

	var rec commitRecorder
	c := newTestConsumer(d, &rec)
	c.process(context.Background(), fetchesOf(record(1, "down", nil, deliveryJSON)))
	assert.Empty(t, rec.marked)
	assert.Zero(t, rec.commits)
	assert.Len(t, rec.rewinds, 1)
}

func TestRun(t *testing.T) {
	assert := assert.New(t)
	d := new(mockDeliverer)
	d.On("Deliver", mock.Anything, "ok", mock.Anything).Return(ingest.Report{}, nil)

	var rec commitRecorder
	c := newTestConsumer(d, &rec)
	ctx, cancel := context.WithCancel(context.Background())
	polls, rebalances, closed := 0, 0, false
	c.poll = func(context.Context, int) kgo.Fetches {
		polls++
		if polls == 2 {
			cancel()
			return nil
		}
		return fetchesOf(record(int64(polls), "ok", nil, deliveryJSON))
	}
	c.allowRebalance = func() { rebalances++ }
	c.closeClient = func() { closed = true }

	assert.NoError(c.Run(ctx))
	assert.Equal(2, polls)
	assert.Equal(2, rebalances)
	assert.True(closed)
	assert.Equal([]int64{1}, rec.marked)
}
