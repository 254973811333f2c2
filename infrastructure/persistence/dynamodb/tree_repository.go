package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"north-backend/application/ports"
	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

// ErrConflict is returned when UpdateTree loses the optimistic lock on
// every attempt.
var ErrConflict = errors.New("tree was modified concurrently")

// maxUpdateAttempts bounds the read-modify-write loop in UpdateTree.
const maxUpdateAttempts = 5

// documentItem is the stored shape of an index or tree. The document itself
// is kept as JSON so the domain's custom encoders apply.
type documentItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Document   string `dynamodbav:"Document"`
	Version    int64  `dynamodbav:"Version"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// TreeRepository implements ports.TreeRepository on DynamoDB.
type TreeRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

var _ ports.TreeRepository = (*TreeRepository)(nil)

// NewTreeRepository creates a repository over tableName.
func NewTreeRepository(client API, tableName string, logger *zap.Logger) *TreeRepository {
	return &TreeRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

func (r *TreeRepository) get(ctx context.Context, pk, sk string) (*documentItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            key(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get "+sk, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var item documentItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", sk, err)
	}
	return &item, nil
}

// upsert writes the document and bumps its version.
func (r *TreeRepository) upsert(ctx context.Context, pk, sk, entityType string, doc []byte) error {
	update := expression.
		Set(expression.Name(attrDocument), expression.Value(string(doc))).
		Set(expression.Name(attrEntityType), expression.Value(entityType)).
		Set(expression.Name(attrUpdatedAt), expression.Value(r.now().Format(time.RFC3339Nano))).
		Add(expression.Name(attrVersion), expression.Value(1))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("build expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       key(pk, sk),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return apperrors.NewDatabaseError("update "+sk, err)
	}
	return nil
}

func (r *TreeRepository) GetIndex(ctx context.Context, userID string) (*tree.Index, error) {
	item, err := r.get(ctx, userPK(userID), skIndex)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return tree.NewIndex(), nil
	}
	return decodeIndex(item.Document)
}

func (r *TreeRepository) SaveIndex(ctx context.Context, userID string, idx *tree.Index) error {
	doc, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return r.upsert(ctx, userPK(userID), skIndex, entityIndex, doc)
}

func (r *TreeRepository) GetTree(ctx context.Context, userID, treeID string) (*tree.Tree, error) {
	item, err := r.get(ctx, userPK(userID), treeSK(treeID))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, tree.ErrTreeNotFound
	}
	return decodeTree(item.Document)
}

func (r *TreeRepository) SaveTree(ctx context.Context, userID string, t *tree.Tree) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	return r.upsert(ctx, userPK(userID), treeSK(t.ID), entityTree, doc)
}

func (r *TreeRepository) DeleteTree(ctx context.Context, userID, treeID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       key(userPK(userID), treeSK(treeID)),
	})
	if err != nil {
		return apperrors.NewDatabaseError("delete tree "+treeID, err)
	}
	return nil
}

// UpdateTree reads the tree, applies fn and writes it back on the condition
// that the stored version is unchanged, retrying on conflict.
func (r *TreeRepository) UpdateTree(ctx context.Context, userID, treeID string, fn func(*tree.Tree) error) (*tree.Tree, error) {
	pk, sk := userPK(userID), treeSK(treeID)

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		item, err := r.get(ctx, pk, sk)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, tree.ErrTreeNotFound
		}
		t, err := decodeTree(item.Document)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}

		err = r.putIfVersion(ctx, item, t)
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			r.logger.Debug("Tree update conflicted, retrying",
				zap.String("user_id", userID),
				zap.String("tree_id", treeID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("update tree %s: %w", treeID, ErrConflict)
}

func (r *TreeRepository) putIfVersion(ctx context.Context, prev *documentItem, t *tree.Tree) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	next := documentItem{
		PK:         prev.PK,
		SK:         prev.SK,
		EntityType: entityTree,
		Document:   string(doc),
		Version:    prev.Version + 1,
		UpdatedAt:  r.now().Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal tree: %w", err)
	}

	cond := expression.Name(attrVersion).Equal(expression.Value(prev.Version))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build expression: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return err
}

func (r *TreeRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	})
	return err
}

func decodeIndex(doc string) (*tree.Index, error) {
	idx := tree.NewIndex()
	if err := json.Unmarshal([]byte(doc), idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if idx.Trees == nil {
		idx.Trees = []tree.IndexEntry{}
	}
	return idx, nil
}

func decodeTree(doc string) (*tree.Tree, error) {
	var t tree.Tree
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	t.Normalize()
	return &t, nil
}
