// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"
	"github.com/hailocab/go-hostpool"
	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/zap"
)

type dbStore interface {
	coordinator.Backend
	Close()
	Ping() error
}

var errServerClosed = errors.New("server is closed")

// Expected schema:
//
//	CREATE TABLE coordinator (bucket text, id text, data blob, PRIMARY KEY (bucket, id));
const (
	insertQuery        = "INSERT INTO coordinator (bucket, id, data) VALUES (?,?,?) USING TTL ?"
	insertIfAbsent     = "INSERT INTO coordinator (bucket, id, data) VALUES (?,?,?) IF NOT EXISTS USING TTL ?"
	updateIfEqual      = "UPDATE coordinator USING TTL ? SET data = ? WHERE bucket = ? AND id = ? IF data = ?"
	selectQuery        = "SELECT data, ttl(data) FROM coordinator WHERE bucket = ? AND id = ?"
	selectBucketQuery  = "SELECT id, data, ttl(data) FROM coordinator WHERE bucket = ?"
	deleteIfExists     = "DELETE FROM coordinator WHERE bucket = ? AND id = ? IF EXISTS"
	deleteIfEqualQuery = "DELETE FROM coordinator WHERE bucket = ? AND id = ? IF data = ?"
)

type cassandraExecutor struct {
	session *gocql.Session
	logger  *zap.Logger
}

func connect(clusterConfig *gocql.ClusterConfig, logger *zap.Logger) (dbStore, error) {
	clusterConfig.PoolConfig.HostSelectionPolicy = gocql.HostPoolHostPolicy(hostpool.New(nil))
	session, err := clusterConfig.CreateSession()
	if err != nil {
		return nil, err
	}

	return &cassandraExecutor{session: session, logger: logger}, nil
}

// ttlSeconds rounds up to whole seconds. Zero disables expiry.
func ttlSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int((ttl + time.Second - 1) / time.Second)
}

func (s *cassandraExecutor) Push(ctx context.Context, key coordinator.Key, item coordinator.Item) error {
	return s.session.Query(insertQuery, key.Bucket, key.ID, item.Data, ttlSeconds(item.TTL)).WithContext(ctx).Exec()
}

func (s *cassandraExecutor) PushIf(ctx context.Context, key coordinator.Key, item coordinator.Item, expected []byte) (bool, error) {
	var q *gocql.Query
	if expected == nil {
		q = s.session.Query(insertIfAbsent, key.Bucket, key.ID, item.Data, ttlSeconds(item.TTL))
	} else {
		q = s.session.Query(updateIfEqual, ttlSeconds(item.TTL), item.Data, key.Bucket, key.ID, expected)
	}
	return q.WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

func (s *cassandraExecutor) Get(ctx context.Context, key coordinator.Key) (coordinator.Item, error) {
	var (
		data []byte
		ttl  int
	)
	iter := s.session.Query(selectQuery, key.Bucket, key.ID).WithContext(ctx).Iter()
	defer func() {
		if err := iter.Close(); err != nil {
			s.logger.Error("failed to close iter", zap.String("bucket", key.Bucket), zap.String("id", key.ID), zap.Error(err))
		}
	}()
	if iter.Scan(&data, &ttl) {
		return coordinator.Item{Data: data, TTL: time.Duration(ttl) * time.Second}, nil
	}
	return coordinator.Item{}, coordinator.ErrItemNotFound
}

func (s *cassandraExecutor) Delete(ctx context.Context, key coordinator.Key) error {
	applied, err := s.session.Query(deleteIfExists, key.Bucket, key.ID).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return err
	}
	if !applied {
		return coordinator.ErrItemNotFound
	}
	return nil
}

func (s *cassandraExecutor) DeleteIf(ctx context.Context, key coordinator.Key, expected []byte) (bool, error) {
	return s.session.Query(deleteIfEqualQuery, key.Bucket, key.ID, expected).WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

func (s *cassandraExecutor) GetAll(ctx context.Context, bucket string) (map[string]coordinator.Item, error) {
	result := map[string]coordinator.Item{}
	var (
		id   string
		data []byte
		ttl  int
	)
	iter := s.session.Query(selectBucketQuery, bucket).WithContext(ctx).Iter()
	for iter.Scan(&id, &data, &ttl) {
		result[id] = coordinator.Item{Data: data, TTL: time.Duration(ttl) * time.Second}
		data = nil
		ttl = 0
	}
	err := iter.Close()
	return result, err
}

func (s *cassandraExecutor) Close() {
	s.session.Close()
}

func (s *cassandraExecutor) Ping() error {
	if s.session.Closed() {
		return errServerClosed
	}
	return nil
}
