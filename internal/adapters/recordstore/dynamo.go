// Package recordstore implements the ports.Record contract over DynamoDB.
// The composite-key + GSI + conditional-update shape in spec §3/§6 is
// DynamoDB's native API; the claim/conditional-update discipline (build
// an UpdateExpression, surface condition failures distinctly) is adapted
// from kernel/internal/audit/pg_store.go's transactional update methods.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// Store implements ports.Record against a DynamoDB table with primary key
// (meetingId, createdAt) and a GSI "status-createdAt-index" on
// (status, createdAt). GlossaryTable is a separate, read-only table keyed
// by termId.
type Store struct {
	client        *dynamodb.Client
	table         string
	glossaryTable string
	gsiName       string
}

func New(client *dynamodb.Client, table, glossaryTable string) *Store {
	return &Store{client: client, table: table, glossaryTable: glossaryTable, gsiName: "status-createdAt-index"}
}

func (s *Store) GetMeeting(ctx context.Context, meetingID string, createdAt time.Time) (map[string]interface{}, error) {
	key, err := attributevalue.MarshalMap(map[string]interface{}{
		"meetingId": meetingID,
		"createdAt": createdAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("recordstore: marshal key: %w", err)
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("recordstore: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ports.ConditionFailedError{}
	}
	var item map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("recordstore: unmarshal item: %w", err)
	}
	return item, nil
}

func (s *Store) PutMeeting(ctx context.Context, item map[string]interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("recordstore: marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("recordstore: put item: %w", err)
	}
	return nil
}

// UpdateMeeting builds an UpdateExpression from Sets/Removes and applies
// Condition as a DynamoDB ConditionExpression. A condition-check failure
// is surfaced as ports.ConditionFailedError so the retry contract (spec
// §4.5) can map it to a 409.
func (s *Store) UpdateMeeting(ctx context.Context, in ports.UpdateInput) error {
	key, err := attributevalue.MarshalMap(map[string]interface{}{
		"meetingId": in.MeetingID,
		"createdAt": in.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("recordstore: marshal key: %w", err)
	}

	names := map[string]string{}
	values := map[string]interface{}{}
	var setClauses, removeClauses []string

	i := 0
	for attr, v := range in.Sets {
		i++
		nk := fmt.Sprintf("#s%d", i)
		vk := fmt.Sprintf(":s%d", i)
		names[nk] = attr
		values[vk] = v
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nk, vk))
	}
	for j, attr := range in.Removes {
		nk := fmt.Sprintf("#r%d", j)
		names[nk] = attr
		removeClauses = append(removeClauses, nk)
	}

	var exprParts []string
	if len(setClauses) > 0 {
		exprParts = append(exprParts, "SET "+strings.Join(setClauses, ", "))
	}
	if len(removeClauses) > 0 {
		exprParts = append(exprParts, "REMOVE "+strings.Join(removeClauses, ", "))
	}
	if len(exprParts) == 0 {
		return fmt.Errorf("recordstore: update requires at least one set or remove")
	}

	for k, v := range in.ConditionOn {
		values[k] = v
	}

	avNames := map[string]string{}
	for k, v := range names {
		avNames[k] = v
	}
	avValues, err := attributevalue.MarshalMap(values)
	if err != nil {
		return fmt.Errorf("recordstore: marshal update values: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key,
		UpdateExpression:          aws.String(strings.Join(exprParts, " ")),
		ExpressionAttributeNames:  avNames,
		ExpressionAttributeValues: avValues,
	}
	if in.Condition != "" {
		input.ConditionExpression = aws.String(in.Condition)
	}

	_, err = s.client.UpdateItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ports.ConditionFailedError{}
		}
		return fmt.Errorf("recordstore: update item: %w", err)
	}
	return nil
}

// QueryMeetingsByStatus queries the GSI on (status, createdAt) with an
// optional equality filter on one attribute (used for the s3Key dedup
// lookup in spec §4.2 step 2).
func (s *Store) QueryMeetingsByStatus(ctx context.Context, in ports.QueryInput) ([]map[string]interface{}, error) {
	names := map[string]string{"#status": "status"}
	values, err := attributevalue.MarshalMap(map[string]interface{}{":status": in.PartitionValue})
	if err != nil {
		return nil, fmt.Errorf("recordstore: marshal query key: %w", err)
	}

	keyCond := "#status = :status"
	filterExpr := ""
	if in.FilterAttr != "" {
		names["#filterAttr"] = in.FilterAttr
		fv, err := attributevalue.MarshalMap(map[string]interface{}{":filterVal": in.FilterValue})
		if err != nil {
			return nil, fmt.Errorf("recordstore: marshal filter value: %w", err)
		}
		values[":filterVal"] = fv[":filterVal"]
		filterExpr = "#filterAttr = :filterVal"
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.gsiName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(in.Limit)
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("recordstore: query: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item map[string]interface{}
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, fmt.Errorf("recordstore: unmarshal query item: %w", err)
		}
		results = append(results, item)
	}
	return results, nil
}

// ScanGlossaryTerms performs one page of a paginated scan over the
// glossary table. pageToken is the termId to resume from (an
// ExclusiveStartKey); an empty nextPageToken means the scan is exhausted.
func (s *Store) ScanGlossaryTerms(ctx context.Context, pageToken string) ([]map[string]interface{}, string, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.glossaryTable)}
	if pageToken != "" {
		startKey, err := attributevalue.MarshalMap(map[string]interface{}{"termId": pageToken})
		if err != nil {
			return nil, "", fmt.Errorf("recordstore: marshal scan start key: %w", err)
		}
		input.ExclusiveStartKey = startKey
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("recordstore: scan glossary: %w", err)
	}

	items := make([]map[string]interface{}, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item map[string]interface{}
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, "", fmt.Errorf("recordstore: unmarshal glossary item: %w", err)
		}
		items = append(items, item)
	}

	next := ""
	if len(out.LastEvaluatedKey) > 0 {
		var lastKey struct {
			TermID string `dynamodbav:"termId"`
		}
		if err := attributevalue.UnmarshalMap(out.LastEvaluatedKey, &lastKey); err == nil {
			next = lastKey.TermID
		}
	}
	return items, next, nil
}
