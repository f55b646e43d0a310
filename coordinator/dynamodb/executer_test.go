// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/sirihub/coordinator"
)

const (
	testTableName  = "table01"
	testBucketName = "vehicles"
	testID         = "RUT:VehicleRef:1042"
)

var (
	testNow  = time.Unix(1700000000, 0)
	testKey  = coordinator.Key{Bucket: testBucketName, ID: testID}
	testData = []byte("envelope")
	errDummy = errors.New("throughput exceeded")
)

func newTestExecutor(c client) *executor {
	return &executor{
		c:         c,
		tableName: testTableName,
		now:       func() time.Time { return testNow },
	}
}

func storedAttributes(id string, data []byte, expires *int64) map[string]types.AttributeValue {
	av := map[string]types.AttributeValue{
		bucketAttributeKey: &types.AttributeValueMemberS{Value: testBucketName},
		idAttributeKey:     &types.AttributeValueMemberS{Value: id},
		dataAttributeKey:   &types.AttributeValueMemberB{Value: data},
	}
	if expires != nil {
		av[expirationAttributeKey] = &types.AttributeValueMemberN{Value: strconv.FormatInt(*expires, 10)}
	}
	return av
}

func TestPushIfConditions(t *testing.T) {
	tcs := []struct {
		Description       string
		Expected          []byte
		ClientErr         error
		ExpectedCondition string
		ExpectedApplied   bool
		ExpectedErr       error
	}{
		{
			Description:       "Create when absent",
			ExpectedCondition: absentCondition,
			ExpectedApplied:   true,
		},
		{
			Description:       "Compare and swap",
			Expected:          []byte("previous"),
			ExpectedCondition: expectedCondition,
			ExpectedApplied:   true,
		},
		{
			Description:       "Condition failed",
			Expected:          []byte("previous"),
			ClientErr:         &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")},
			ExpectedCondition: expectedCondition,
		},
		{
			Description:       "Client error",
			ClientErr:         errDummy,
			ExpectedCondition: absentCondition,
			ExpectedErr:       errDummy,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			m := new(mockClient)
			var captured *dynamodb.PutItemInput
			m.On("PutItem", mock.Anything).Run(func(args mock.Arguments) {
				captured = args.Get(0).(*dynamodb.PutItemInput)
			}).Return(&dynamodb.PutItemOutput{}, tc.ClientErr)

			applied, _, err := newTestExecutor(m).PushIf(context.Background(), testKey, coordinator.Item{Data: testData, TTL: 30 * time.Second}, tc.Expected)
			assert.Equal(tc.ExpectedApplied, applied)
			if tc.ExpectedErr != nil {
				assert.ErrorIs(err, tc.ExpectedErr)
			} else {
				assert.NoError(err)
			}
			require.NotNil(t, captured)
			assert.Equal(tc.ExpectedCondition, aws.ToString(captured.ConditionExpression))
			assert.Equal(testTableName, aws.ToString(captured.TableName))
			exp := captured.Item[expirationAttributeKey].(*types.AttributeValueMemberN)
			assert.Equal(strconv.FormatInt(testNow.Unix()+30, 10), exp.Value)
			if tc.Expected != nil {
				assert.Equal(tc.Expected, captured.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberB).Value)
			}
		})
	}
}

func TestPushWithoutTTL(t *testing.T) {
	m := new(mockClient)
	m.On("PutItem", mock.MatchedBy(func(input *dynamodb.PutItemInput) bool {
		_, hasExpiry := input.Item[expirationAttributeKey]
		return !hasExpiry && input.ConditionExpression == nil
	})).Return(&dynamodb.PutItemOutput{ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: aws.Float64(1)}}, nil)

	cc, err := newTestExecutor(m).Push(context.Background(), testKey, coordinator.Item{Data: testData})
	assert.NoError(t, err)
	assert.Equal(t, 1.0, *cc.CapacityUnits)
	m.AssertExpectations(t)
}

func TestGet(t *testing.T) {
	future := testNow.Add(time.Minute).Unix()
	past := testNow.Add(-time.Second).Unix()
	tcs := []struct {
		Description  string
		Output       *dynamodb.GetItemOutput
		ClientErr    error
		ExpectedItem coordinator.Item
		ExpectedErr  error
	}{
		{
			Description: "Found",
			Output:      &dynamodb.GetItemOutput{Item: storedAttributes(testID, testData, &future)},
			ExpectedItem: coordinator.Item{
				Data: testData,
				TTL:  time.Minute,
			},
		},
		{
			Description:  "Found without expiry",
			Output:       &dynamodb.GetItemOutput{Item: storedAttributes(testID, testData, nil)},
			ExpectedItem: coordinator.Item{Data: testData},
		},
		{
			Description: "Expired but not yet reaped",
			Output:      &dynamodb.GetItemOutput{Item: storedAttributes(testID, testData, &past)},
			ExpectedErr: coordinator.ErrItemNotFound,
		},
		{
			Description: "Missing",
			Output:      &dynamodb.GetItemOutput{},
			ExpectedErr: coordinator.ErrItemNotFound,
		},
		{
			Description: "Client error",
			Output:      &dynamodb.GetItemOutput{},
			ClientErr:   errDummy,
			ExpectedErr: errDummy,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			m := new(mockClient)
			m.On("GetItem", mock.MatchedBy(func(input *dynamodb.GetItemInput) bool {
				return aws.ToBool(input.ConsistentRead)
			})).Return(tc.Output, tc.ClientErr)

			item, _, err := newTestExecutor(m).Get(context.Background(), testKey)
			if tc.ExpectedErr != nil {
				assert.ErrorIs(err, tc.ExpectedErr)
				return
			}
			assert.NoError(err)
			assert.Equal(tc.ExpectedItem, item)
		})
	}
}

func TestDelete(t *testing.T) {
	assert := assert.New(t)
	m := new(mockClient)
	m.On("DeleteItem", mock.Anything).Return(&dynamodb.DeleteItemOutput{Attributes: storedAttributes(testID, testData, nil)}, nil).Once()
	m.On("DeleteItem", mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	e := newTestExecutor(m)
	_, err := e.Delete(context.Background(), testKey)
	assert.NoError(err)
	_, err = e.Delete(context.Background(), testKey)
	assert.ErrorIs(err, coordinator.ErrItemNotFound)
}

func TestDeleteIf(t *testing.T) {
	assert := assert.New(t)
	m := new(mockClient)
	m.On("DeleteItem", mock.MatchedBy(func(input *dynamodb.DeleteItemInput) bool {
		return aws.ToString(input.ConditionExpression) == expectedCondition
	})).Return(&dynamodb.DeleteItemOutput{}, &types.ConditionalCheckFailedException{}).Once()
	m.On("DeleteItem", mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	e := newTestExecutor(m)
	ok, _, err := e.DeleteIf(context.Background(), testKey, []byte("stale"))
	assert.NoError(err)
	assert.False(ok)
	ok, _, err = e.DeleteIf(context.Background(), testKey, testData)
	assert.NoError(err)
	assert.True(ok)
}

func TestGetAllPaginates(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	past := testNow.Add(-time.Minute).Unix()
	lastKey := map[string]types.AttributeValue{
		bucketAttributeKey: &types.AttributeValueMemberS{Value: testBucketName},
		idAttributeKey:     &types.AttributeValueMemberS{Value: "b"},
	}

	m := new(mockClient)
	m.On("Query", mock.MatchedBy(func(input *dynamodb.QueryInput) bool {
		return input.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			storedAttributes("a", []byte("1"), nil),
			storedAttributes("b", []byte("2"), &past),
		},
		LastEvaluatedKey: lastKey,
		ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: aws.Float64(0.5)},
	}, nil).Once()
	m.On("Query", mock.MatchedBy(func(input *dynamodb.QueryInput) bool {
		return input.ExclusiveStartKey != nil
	})).Return(&dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{storedAttributes("c", []byte("3"), nil)},
		ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: aws.Float64(0.5)},
	}, nil).Once()

	items, cc, err := newTestExecutor(m).GetAll(context.Background(), testBucketName)
	require.NoError(err)
	assert.Equal(map[string]coordinator.Item{
		"a": {Data: []byte("1")},
		"c": {Data: []byte("3")},
	}, items)
	assert.Equal(1.0, *cc.CapacityUnits)
	m.AssertExpectations(t)
}
