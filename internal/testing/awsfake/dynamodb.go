package awsfake

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoTable struct {
	keyAttr string
	items   map[string]map[string]types.AttributeValue
}

// DynamoDBServer implements a DynamoDB simulator with single-key tables.
type DynamoDBServer struct {
	ops

	mu     sync.Mutex
	tables map[string]*dynamoTable
}

func NewDynamoDBServer() *DynamoDBServer {
	srv := &DynamoDBServer{}
	srv.Reset()
	return srv
}

func (s *DynamoDBServer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetOps()
	s.tables = make(map[string]*dynamoTable)
}

// CreateTable registers a table whose partition key is keyAttr.
func (s *DynamoDBServer) CreateTable(name, keyAttr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &dynamoTable{keyAttr: keyAttr, items: map[string]map[string]types.AttributeValue{}}
}

// Len returns the number of items in table.
func (s *DynamoDBServer) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return 0
	}
	return len(t.items)
}

func (s *DynamoDBServer) PutItem(
	ctx context.Context,
	input *dynamodb.PutItemInput,
	opts ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	if err := s.enter("PutItem"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(input.TableName)
	if err != nil {
		return nil, err
	}
	key, ok := stringAttr(input.Item, t.keyAttr)
	if !ok {
		return nil, APIError("ValidationException", "missing key attribute %s", t.keyAttr)
	}
	item := make(map[string]types.AttributeValue, len(input.Item))
	for k, v := range input.Item {
		item[k] = v
	}
	t.items[key] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (s *DynamoDBServer) GetItem(
	ctx context.Context,
	input *dynamodb.GetItemInput,
	opts ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	if err := s.enter("GetItem"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(input.TableName)
	if err != nil {
		return nil, err
	}
	key, ok := stringAttr(input.Key, t.keyAttr)
	if !ok {
		return nil, APIError("ValidationException", "the provided key element does not match the schema")
	}
	out := &dynamodb.GetItemOutput{}
	if item, found := t.items[key]; found {
		out.Item = make(map[string]types.AttributeValue, len(item))
		for k, v := range item {
			out.Item[k] = v
		}
	}
	return out, nil
}

func (s *DynamoDBServer) DeleteItem(
	ctx context.Context,
	input *dynamodb.DeleteItemInput,
	opts ...func(*dynamodb.Options),
) (*dynamodb.DeleteItemOutput, error) {
	if err := s.enter("DeleteItem"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(input.TableName)
	if err != nil {
		return nil, err
	}
	key, ok := stringAttr(input.Key, t.keyAttr)
	if !ok {
		return nil, APIError("ValidationException", "the provided key element does not match the schema")
	}
	delete(t.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (s *DynamoDBServer) table(name *string) (*dynamoTable, error) {
	t, ok := s.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Requested resource not found: Table: " + aws.ToString(name) + " not found"),
		}
	}
	return t, nil
}

func stringAttr(item map[string]types.AttributeValue, attr string) (string, bool) {
	v, ok := item[attr].(*types.AttributeValueMemberS)
	if !ok || v.Value == "" {
		return "", false
	}
	return v.Value, true
}
