package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoItemStore.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// DynamoItemStore keeps items in DynamoDB tables. Every attribute is written
// as a string. Provider errors are returned untouched.
type DynamoItemStore struct {
	client DynamoDBAPI
}

func NewDynamoItemStore(client DynamoDBAPI) *DynamoItemStore {
	return &DynamoItemStore{client: client}
}

func (s *DynamoItemStore) InsertItem(ctx context.Context, table string, item Item) error {
	if len(item) == 0 {
		return appErr.New(appErr.CodeInvalid, "empty item")
	}
	av := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		av[k] = &types.AttributeValueMemberS{Value: v}
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	return err
}

func (s *DynamoItemStore) GetItem(ctx context.Context, table, keyAttr, keyValue string) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            stringKey(keyAttr, keyValue),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, appErr.Newf(appErr.CodeNotFound, "item %s=%q not found in %s", keyAttr, keyValue, table)
	}
	item := make(Item, len(out.Item))
	for k, v := range out.Item {
		if sv, ok := v.(*types.AttributeValueMemberS); ok {
			item[k] = sv.Value
		}
	}
	return item, nil
}

func (s *DynamoItemStore) DeleteItem(ctx context.Context, table, keyAttr, keyValue string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       stringKey(keyAttr, keyValue),
	})
	return err
}

func stringKey(attr, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attr: &types.AttributeValueMemberS{Value: value}}
}
