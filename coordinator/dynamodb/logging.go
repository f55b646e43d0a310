// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/zap"
)

type loggingService struct {
	service
	logger *zap.Logger
}

func newLoggingService(logger *zap.Logger, s service) service {
	return &loggingService{service: s, logger: logger}
}

func (s *loggingService) GetAll(ctx context.Context, bucket string) (items map[string]coordinator.Item, consumedCapacity *types.ConsumedCapacity, err error) {
	defer func() {
		s.logger.Debug("queried bucket", zap.Int("itemsSize", len(items)), zap.String("bucket", bucket), zap.Error(err))
	}()
	items, consumedCapacity, err = s.service.GetAll(ctx, bucket)
	return
}

func (s *loggingService) PushIf(ctx context.Context, key coordinator.Key, item coordinator.Item, expected []byte) (ok bool, consumedCapacity *types.ConsumedCapacity, err error) {
	defer func() {
		s.logger.Debug("conditional put", zap.String("bucket", key.Bucket), zap.String("id", key.ID), zap.Bool("applied", ok), zap.Error(err))
	}()
	ok, consumedCapacity, err = s.service.PushIf(ctx, key, item, expected)
	return
}
