// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/xmidt-org/sirihub/coordinator"
)

// client captures the methods of interest from the dynamoDB API. This
// should help mock API calls as well.
type client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// service defines the dynamodb specific DAO interface. It helps keeping middleware
// such as logging and instrumentation orthogonal to business logic.
type service interface {
	Push(ctx context.Context, key coordinator.Key, item coordinator.Item) (*types.ConsumedCapacity, error)
	PushIf(ctx context.Context, key coordinator.Key, item coordinator.Item, expected []byte) (bool, *types.ConsumedCapacity, error)
	Get(ctx context.Context, key coordinator.Key) (coordinator.Item, *types.ConsumedCapacity, error)
	Delete(ctx context.Context, key coordinator.Key) (*types.ConsumedCapacity, error)
	DeleteIf(ctx context.Context, key coordinator.Key, expected []byte) (bool, *types.ConsumedCapacity, error)
	GetAll(ctx context.Context, bucket string) (map[string]coordinator.Item, *types.ConsumedCapacity, error)
}

// executor satisfies the service interface so the DynamoClient can then adapt
// the outputs to the coordinator's Backend contract.
type executor struct {
	// c is the dynamodb client
	c client

	// tableName is the name of the dynamodb table
	tableName string

	now func() time.Time
}

type storableItem struct {
	Bucket  string `dynamodbav:"bucket"`
	ID      string `dynamodbav:"id"`
	Data    []byte `dynamodbav:"data"`
	Expires *int64 `dynamodbav:"expires,omitempty"`
}

// Dynamo DB attribute keys
const (
	bucketAttributeKey     = "bucket"
	idAttributeKey         = "id"
	dataAttributeKey       = "data"
	expirationAttributeKey = "expires"
)

const (
	absentCondition   = "attribute_not_exists(#id) OR (attribute_exists(#expires) AND #expires <= :now)"
	expectedCondition = "#data = :expected"
)

func (d *executor) keyAttributes(key coordinator.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		bucketAttributeKey: &types.AttributeValueMemberS{Value: key.Bucket},
		idAttributeKey:     &types.AttributeValueMemberS{Value: key.ID},
	}
}

func (d *executor) putInput(key coordinator.Key, item coordinator.Item) (*dynamodb.PutItemInput, error) {
	storingItem := storableItem{
		Bucket: key.Bucket,
		ID:     key.ID,
		Data:   item.Data,
	}
	if item.TTL > 0 {
		// round up so an item never expires early
		unixExpSeconds := d.now().Add(item.TTL + time.Second - 1).Unix()
		storingItem.Expires = &unixExpSeconds
	}
	av, err := attributevalue.MarshalMap(storingItem)
	if err != nil {
		return nil, err
	}
	return &dynamodb.PutItemInput{
		Item:                   av,
		TableName:              aws.String(d.tableName),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}, nil
}

func (d *executor) Push(ctx context.Context, key coordinator.Key, item coordinator.Item) (*types.ConsumedCapacity, error) {
	input, err := d.putInput(key, item)
	if err != nil {
		return nil, err
	}
	result, err := d.c.PutItem(ctx, input)
	var consumedCapacity *types.ConsumedCapacity
	if result != nil {
		consumedCapacity = result.ConsumedCapacity
	}
	return consumedCapacity, err
}

func (d *executor) PushIf(ctx context.Context, key coordinator.Key, item coordinator.Item, expected []byte) (bool, *types.ConsumedCapacity, error) {
	input, err := d.putInput(key, item)
	if err != nil {
		return false, nil, err
	}
	if expected == nil {
		input.ConditionExpression = aws.String(absentCondition)
		input.ExpressionAttributeNames = map[string]string{
			"#id":      idAttributeKey,
			"#expires": expirationAttributeKey,
		}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Unix(), 10)},
		}
	} else {
		input.ConditionExpression = aws.String(expectedCondition)
		input.ExpressionAttributeNames = map[string]string{"#data": dataAttributeKey}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberB{Value: expected},
		}
	}

	result, err := d.c.PutItem(ctx, input)
	var consumedCapacity *types.ConsumedCapacity
	if result != nil {
		consumedCapacity = result.ConsumedCapacity
	}
	return conditionResult(consumedCapacity, err)
}

func (d *executor) Get(ctx context.Context, key coordinator.Key) (coordinator.Item, *types.ConsumedCapacity, error) {
	result, err := d.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:              aws.String(d.tableName),
		Key:                    d.keyAttributes(key),
		ConsistentRead:         aws.Bool(true),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return coordinator.Item{}, nil, err
	}
	_, item, ok, err := d.decode(result.Item)
	if err != nil {
		return coordinator.Item{}, result.ConsumedCapacity, err
	}
	if !ok {
		return coordinator.Item{}, result.ConsumedCapacity, coordinator.ErrItemNotFound
	}
	return item, result.ConsumedCapacity, nil
}

func (d *executor) Delete(ctx context.Context, key coordinator.Key) (*types.ConsumedCapacity, error) {
	result, err := d.c.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:              aws.String(d.tableName),
		Key:                    d.keyAttributes(key),
		ReturnValues:           types.ReturnValueAllOld,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return nil, err
	}
	if _, _, ok, _ := d.decode(result.Attributes); !ok {
		return result.ConsumedCapacity, coordinator.ErrItemNotFound
	}
	return result.ConsumedCapacity, nil
}

func (d *executor) DeleteIf(ctx context.Context, key coordinator.Key, expected []byte) (bool, *types.ConsumedCapacity, error) {
	result, err := d.c.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.tableName),
		Key:                      d.keyAttributes(key),
		ConditionExpression:      aws.String(expectedCondition),
		ExpressionAttributeNames: map[string]string{"#data": dataAttributeKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberB{Value: expected},
		},
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	var consumedCapacity *types.ConsumedCapacity
	if result != nil {
		consumedCapacity = result.ConsumedCapacity
	}
	return conditionResult(consumedCapacity, err)
}

func (d *executor) GetAll(ctx context.Context, bucket string) (map[string]coordinator.Item, *types.ConsumedCapacity, error) {
	result := map[string]coordinator.Item{}
	total := &types.ConsumedCapacity{CapacityUnits: aws.Float64(0)}
	var startKey map[string]types.AttributeValue
	for {
		queryResult, err := d.c.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(d.tableName),
			KeyConditionExpression:   aws.String("#bucket = :bucket"),
			ExpressionAttributeNames: map[string]string{"#bucket": bucketAttributeKey},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":bucket": &types.AttributeValueMemberS{Value: bucket},
			},
			ExclusiveStartKey:      startKey,
			ConsistentRead:         aws.Bool(true),
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return map[string]coordinator.Item{}, total, err
		}
		if queryResult.ConsumedCapacity != nil && queryResult.ConsumedCapacity.CapacityUnits != nil {
			*total.CapacityUnits += *queryResult.ConsumedCapacity.CapacityUnits
		}
		for _, i := range queryResult.Items {
			id, item, ok, err := d.decode(i)
			if err != nil || !ok {
				continue
			}
			result[id] = item
		}
		if len(queryResult.LastEvaluatedKey) == 0 {
			return result, total, nil
		}
		startKey = queryResult.LastEvaluatedKey
	}
}

// decode turns stored attributes into an Item. Expired items are reported as
// absent since DynamoDB deletes them lazily.
func (d *executor) decode(attributes map[string]types.AttributeValue) (string, coordinator.Item, bool, error) {
	if len(attributes) == 0 {
		return "", coordinator.Item{}, false, nil
	}
	var s storableItem
	if err := attributevalue.UnmarshalMap(attributes, &s); err != nil {
		return "", coordinator.Item{}, false, err
	}
	if s.Bucket == "" || s.ID == "" {
		return "", coordinator.Item{}, false, nil
	}
	item := coordinator.Item{Data: s.Data}
	if s.Expires != nil {
		remaining := time.Unix(*s.Expires, 0).Sub(d.now())
		if remaining <= 0 {
			return "", coordinator.Item{}, false, nil
		}
		item.TTL = remaining
	}
	return s.ID, item, true, nil
}

func conditionResult(consumedCapacity *types.ConsumedCapacity, err error) (bool, *types.ConsumedCapacity, error) {
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return false, consumedCapacity, nil
	}
	if err != nil {
		return false, consumedCapacity, err
	}
	return true, consumedCapacity, nil
}
