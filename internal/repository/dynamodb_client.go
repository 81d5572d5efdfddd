package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"honeypot-agent/internal/domain"
)

const (
	skState       = "STATE#"
	skPrefixTurn  = "TURN#"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL
	condNewItem   = "attribute_not_exists(PK) AND attribute_not_exists(SK)"
	condVersioned = "attribute_not_exists(PK) OR #v = :expected"

	maxTranscriptLimit = 1000
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores honeypot sessions in a single DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ SessionStore = (*Client)(nil)

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// turnSK orders turns by time, with the message ordinal breaking ties.
func turnSK(ts time.Time, ordinal int) string {
	return fmt.Sprintf("%s%s#%06d", skPrefixTurn, ts.UTC().Format(time.RFC3339Nano), ordinal)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// Load reads the session item with a consistent read.
func (c *Client) Load(ctx context.Context, sessionID string) (domain.SessionState, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionState{}, false, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionState{}, false, nil
	}

	state, err := itemToState(out.Item)
	if err != nil {
		return domain.SessionState{}, false, fmt.Errorf("repository: Load decode: %w", err)
	}
	return state, true, nil
}

// SaveTurn writes the turn record and the updated session item in one
// transaction. The session write only succeeds if the stored version still
// matches state.Version.
func (c *Client) SaveTurn(ctx context.Context, state domain.SessionState, turn domain.Turn) error {
	if state.SessionID == "" {
		return errors.New("repository: SaveTurn: session id is required")
	}

	now := c.now()
	ttl := c.ttlValue()
	expected := state.Version
	state.Version++

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(state.SessionID, turnSK(now, state.TotalMessages), turn, ttl),
					ConditionExpression: aws.String(condNewItem),
				},
			},
			{
				Put: &types.Put{
					TableName:                aws.String(c.tableName),
					Item:                     stateItem(state, now, ttl),
					ConditionExpression:      aws.String(condVersioned),
					ExpressionAttributeNames: map[string]string{"#v": "version"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":expected": numAttr(expected),
					},
				},
			},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("repository: SaveTurn %q: %w", state.SessionID, ErrVersionConflict)
		}
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// Transcript returns up to limit turns of a session in chronological order.
// It is an operator read path for auditing a session; the request flow never
// reads turns back. limit is clamped to [1, maxTranscriptLimit].
func (c *Client) Transcript(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	limit = min(max(limit, 1), maxTranscriptLimit)
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(true),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Transcript query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Transcript unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func isConditionFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

func stateItem(s domain.SessionState, now time.Time, ttl int64) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":                     &types.AttributeValueMemberS{Value: sessionPK(s.SessionID)},
		"SK":                     &types.AttributeValueMemberS{Value: skState},
		"sessionId":              &types.AttributeValueMemberS{Value: s.SessionID},
		"lifecycleState":         &types.AttributeValueMemberS{Value: string(s.State)},
		"totalMessages":          numAttr(s.TotalMessages),
		"scammerMessages":        numAttr(s.ScammerMessages),
		"agentMessages":          numAttr(s.AgentMessages),
		"noNewIntelligenceTurns": numAttr(s.NoNewIntelligenceTurns),
		"scamType":               &types.AttributeValueMemberS{Value: s.ScamType},
		"notificationSent":       &types.AttributeValueMemberBOOL{Value: s.NotificationSent},
		"notificationAttempts":   numAttr(s.NotificationAttempts),
		"notificationPending":    &types.AttributeValueMemberBOOL{Value: s.NotificationPending},
		"version":                numAttr(s.Version),
		"lastActivity":           &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		"ttl":                    numAttr(ttl),
	}
	// DynamoDB rejects empty string sets, so empty categories are omitted.
	putSet(item, "bankAccounts", s.Intelligence.BankAccounts)
	putSet(item, "upiIds", s.Intelligence.UPIIDs)
	putSet(item, "phishingLinks", s.Intelligence.PhishingLinks)
	putSet(item, "phoneNumbers", s.Intelligence.PhoneNumbers)
	putSet(item, "suspiciousKeywords", s.Intelligence.SuspiciousKeywords)
	return item
}

func turnItem(sessionID, sk string, t domain.Turn, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":        &types.AttributeValueMemberS{Value: sk},
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		"sender":    &types.AttributeValueMemberS{Value: string(t.Sender)},
		"text":      &types.AttributeValueMemberS{Value: t.Text},
		"reply":     &types.AttributeValueMemberS{Value: t.Reply},
		"fromState": &types.AttributeValueMemberS{Value: string(t.From)},
		"toState":   &types.AttributeValueMemberS{Value: string(t.To)},
		"notes":     &types.AttributeValueMemberS{Value: t.Notes},
		"at":        &types.AttributeValueMemberS{Value: t.At},
		"ttl":       numAttr(ttl),
	}
}

// itemToState converts a DynamoDB attribute map to a SessionState.
func itemToState(item map[string]types.AttributeValue) (domain.SessionState, error) {
	var (
		s   domain.SessionState
		err error
	)
	if s.SessionID, err = strAttr(item, "sessionId"); err != nil {
		return domain.SessionState{}, err
	}
	state, err := strAttr(item, "lifecycleState")
	if err != nil {
		return domain.SessionState{}, err
	}
	s.State = domain.LifecycleState(state)

	ints := []struct {
		key string
		dst *int
	}{
		{"totalMessages", &s.TotalMessages},
		{"scammerMessages", &s.ScammerMessages},
		{"agentMessages", &s.AgentMessages},
		{"noNewIntelligenceTurns", &s.NoNewIntelligenceTurns},
		{"notificationAttempts", &s.NotificationAttempts},
	}
	for _, f := range ints {
		if *f.dst, err = intAttr(item, f.key); err != nil {
			return domain.SessionState{}, err
		}
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return domain.SessionState{}, err
	}
	s.Version = int64(version)

	s.ScamType, _ = strAttr(item, "scamType") // allow empty
	if s.NotificationSent, err = boolAttr(item, "notificationSent"); err != nil {
		return domain.SessionState{}, err
	}
	if s.NotificationPending, err = boolAttr(item, "notificationPending"); err != nil {
		return domain.SessionState{}, err
	}

	s.Intelligence = domain.IntelligenceSet{
		BankAccounts:       setAttr(item, "bankAccounts"),
		UPIIDs:             setAttr(item, "upiIds"),
		PhishingLinks:      setAttr(item, "phishingLinks"),
		PhoneNumbers:       setAttr(item, "phoneNumbers"),
		SuspiciousKeywords: setAttr(item, "suspiciousKeywords"),
	}
	return s, nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Turn{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Turn{}, err
	}
	sender, _ := strAttr(item, "sender")
	reply, _ := strAttr(item, "reply") // allow empty
	from, _ := strAttr(item, "fromState")
	to, _ := strAttr(item, "toState")
	notes, _ := strAttr(item, "notes")
	at, _ := strAttr(item, "at")

	return domain.Turn{
		SessionID: sessionID,
		Sender:    domain.Sender(sender),
		Text:      text,
		Reply:     reply,
		From:      domain.LifecycleState(from),
		To:        domain.LifecycleState(to),
		Notes:     notes,
		At:        at,
	}, nil
}

func numAttr[T int | int64](v T) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}
}

func putSet(item map[string]types.AttributeValue, key string, values domain.StringSet) {
	if len(values) == 0 {
		return
	}
	item[key] = &types.AttributeValueMemberSS{Value: append([]string(nil), values...)}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}

// setAttr tolerates a missing attribute, which is how empty sets are stored.
func setAttr(item map[string]types.AttributeValue, key string) domain.StringSet {
	v, ok := item[key].(*types.AttributeValueMemberSS)
	if !ok {
		return nil
	}
	return domain.NewStringSet(v.Value...)
}
