// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Push(ctx context.Context, key Key, item Item) error {
	args := m.Called(key, item)
	return args.Error(0)
}

func (m *mockBackend) PushIf(ctx context.Context, key Key, item Item, expected []byte) (bool, error) {
	args := m.Called(key, item, expected)
	return args.Bool(0), args.Error(1)
}

func (m *mockBackend) Get(ctx context.Context, key Key) (Item, error) {
	args := m.Called(key)
	return args.Get(0).(Item), args.Error(1)
}

func (m *mockBackend) Delete(ctx context.Context, key Key) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *mockBackend) DeleteIf(ctx context.Context, key Key, expected []byte) (bool, error) {
	args := m.Called(key, expected)
	return args.Bool(0), args.Error(1)
}

func (m *mockBackend) GetAll(ctx context.Context, bucket string) (map[string]Item, error) {
	args := m.Called(bucket)
	return args.Get(0).(map[string]Item), args.Error(1)
}
