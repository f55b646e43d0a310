// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/sirihub/coordinator"
)

type mockDB struct {
	mock.Mock
}

func (s *mockDB) Push(_ context.Context, key coordinator.Key, item coordinator.Item) error {
	args := s.Called(key, item)
	return args.Error(0)
}

func (s *mockDB) PushIf(_ context.Context, key coordinator.Key, item coordinator.Item, expected []byte) (bool, error) {
	args := s.Called(key, item, expected)
	return args.Bool(0), args.Error(1)
}

func (s *mockDB) Get(_ context.Context, key coordinator.Key) (coordinator.Item, error) {
	args := s.Called(key)
	return args.Get(0).(coordinator.Item), args.Error(1)
}

func (s *mockDB) Delete(_ context.Context, key coordinator.Key) error {
	args := s.Called(key)
	return args.Error(0)
}

func (s *mockDB) DeleteIf(_ context.Context, key coordinator.Key, expected []byte) (bool, error) {
	args := s.Called(key, expected)
	return args.Bool(0), args.Error(1)
}

func (s *mockDB) GetAll(_ context.Context, bucket string) (map[string]coordinator.Item, error) {
	args := s.Called(bucket)
	return args.Get(0).(map[string]coordinator.Item), args.Error(1)
}

func (s *mockDB) Close() {
	s.Called()
}

func (s *mockDB) Ping() error {
	args := s.Called()
	return args.Error(0)
}
