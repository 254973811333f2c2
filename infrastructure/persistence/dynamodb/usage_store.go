package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"north-backend/application/ports"
	apperrors "north-backend/pkg/errors"
)

// usageRetention is how long daily counters are kept before TTL expiry.
const usageRetention = 8 * 24 * time.Hour

// UsageStore keeps daily counters as numeric attributes of one item per
// user and day.
type UsageStore struct {
	client    API
	tableName string
}

var _ ports.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a usage store over tableName.
func NewUsageStore(client API, tableName string) *UsageStore {
	return &UsageStore{client: client, tableName: tableName}
}

// incrementExpression adds one to action while it is below limit, creating
// the counter at zero when absent.
func incrementExpression(action string, limit int, expires time.Time) (expression.Expression, error) {
	counter := expression.Name(action)
	update := expression.
		Set(counter, expression.Plus(expression.IfNotExists(counter, expression.Value(0)), expression.Value(1))).
		Set(expression.Name(attrEntityType), expression.Value(entityUsage)).
		Set(expression.Name(attrTTL), expression.Value(expires.Unix()))
	cond := expression.Or(
		counter.AttributeNotExists(),
		counter.LessThan(expression.Value(limit)),
	)
	return expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
}

func (s *UsageStore) Increment(ctx context.Context, userID, day, action string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	expires := time.Now().UTC().Add(usageRetention)
	if d, err := time.Parse(time.DateOnly, day); err == nil {
		expires = d.Add(usageRetention)
	}
	expr, err := incrementExpression(action, limit, expires)
	if err != nil {
		return false, fmt.Errorf("build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       key(userPK(userID), usageSK(day)),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewDatabaseError("increment "+action, err)
	}
	return true, nil
}

func (s *UsageStore) Usage(ctx context.Context, userID, day string) (map[string]int, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(userPK(userID), usageSK(day)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get usage", err)
	}
	return countersFromItem(out.Item), nil
}

// countersFromItem returns the numeric attributes of a usage item other
// than its bookkeeping fields.
func countersFromItem(item map[string]types.AttributeValue) map[string]int {
	counts := make(map[string]int)
	for name, av := range item {
		if name == attrTTL || name == attrVersion {
			continue
		}
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			continue
		}
		v, err := strconv.Atoi(n.Value)
		if err != nil {
			continue
		}
		counts[name] = v
	}
	return counts
}
