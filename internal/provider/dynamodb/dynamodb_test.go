package dynamodb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/sortimate/internal/provider/providertest"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// memDDB is an in-memory single-table DynamoDB that understands the
// key condition the provider issues.
type memDDB struct {
	mu      sync.Mutex
	items   map[string]map[string]ddbtypes.AttributeValue
	created int
	ttlOn   bool
	failAll error
	exists  bool
}

func newMemDDB() *memDDB {
	return &memDDB{items: make(map[string]map[string]ddbtypes.AttributeValue), exists: true}
}

func strAttr(item map[string]ddbtypes.AttributeValue, name string) string {
	if v, ok := item[name].(*ddbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(pk, sk string) string { return pk + "\x00" + sk }

func (m *memDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	m.items[itemKey(strAttr(in.Item, "PK"), strAttr(in.Item, "SK"))] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memDDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	return &dynamodb.GetItemOutput{Item: m.items[itemKey(strAttr(in.Key, "PK"), strAttr(in.Key, "SK"))]}, nil
}

func (m *memDDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	pk := strAttr(in.ExpressionAttributeValues, ":pk")
	prefix := strAttr(in.ExpressionAttributeValues, ":prefix")

	var matched []map[string]ddbtypes.AttributeValue
	for _, item := range m.items {
		if strAttr(item, "PK") == pk && strings.HasPrefix(strAttr(item, "SK"), prefix) {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return strAttr(matched[i], "SK") < strAttr(matched[j], "SK")
	})
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(matched) {
		matched = matched[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: matched}, nil
}

func (m *memDDB) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, &ddbtypes.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *memDDB) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	if m.exists {
		return nil, &ddbtypes.ResourceInUseException{}
	}
	m.exists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *memDDB) UpdateTimeToLive(_ context.Context, _ *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttlOn = true
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func TestConformance(t *testing.T) {
	prov := NewFromClient(newMemDDB(), "sortimate-test", time.Hour)
	require.NoError(t, prov.Start(context.Background()))
	providertest.RunAll(t, prov)
}

func TestStartCreatesTable(t *testing.T) {
	mock := newMemDDB()
	mock.exists = false
	prov := NewFromClient(mock, "sortimate-test", time.Hour)
	prov.createTable = true

	require.NoError(t, prov.Start(context.Background()))
	assert.Equal(t, 1, mock.created)
	assert.True(t, mock.ttlOn)
}

func TestStartTableAlreadyExists(t *testing.T) {
	mock := newMemDDB()
	prov := NewFromClient(mock, "sortimate-test", time.Hour)
	prov.createTable = true

	require.NoError(t, prov.Start(context.Background()))
	assert.Equal(t, 1, mock.created)
	assert.False(t, mock.ttlOn)
}

func TestPingMissingTable(t *testing.T) {
	mock := newMemDDB()
	mock.exists = false
	prov := NewFromClient(mock, "sortimate-test", time.Hour)

	err := prov.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamodb ping failed")
}

func TestRecordAttemptSetsKeysAndTTL(t *testing.T) {
	mock := newMemDDB()
	prov := NewFromClient(mock, "sortimate-test", time.Hour)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, prov.RecordAttempt(context.Background(), types.SortAttempt{
		BinID: "bin-1", AttemptID: "a1", StartedAt: started, Outcome: types.OutcomeSuccess,
	}))

	require.Len(t, mock.items, 1)
	for _, item := range mock.items {
		assert.Equal(t, "BIN#bin-1", strAttr(item, "PK"))
		assert.Equal(t, "ATTEMPT#2026-03-01T12:00:00.000000000Z#a1", strAttr(item, "SK"))
		ttl, ok := item["ttl"].(*ddbtypes.AttributeValueMemberN)
		require.True(t, ok)
		assert.NotEmpty(t, ttl.Value)
	}
}

func TestNoTTLWhenRetentionDisabled(t *testing.T) {
	mock := newMemDDB()
	prov := NewFromClient(mock, "sortimate-test", 0)

	require.NoError(t, prov.CreateAlert(context.Background(), types.Alert{BinID: "bin-1", Message: "x", Timestamp: time.Now()}))
	for _, item := range mock.items {
		_, ok := item["ttl"]
		assert.False(t, ok)
	}
}

func TestErrorsPropagate(t *testing.T) {
	mock := newMemDDB()
	mock.failAll = errors.New("throttled")
	prov := NewFromClient(mock, "sortimate-test", time.Hour)
	ctx := context.Background()

	assert.Error(t, prov.RecordAttempt(ctx, types.SortAttempt{BinID: "b"}))
	assert.Error(t, prov.UpdateBinStatus(ctx, types.BinStatus{BinID: "b"}))
	_, err := prov.GetBinStatus(ctx, "b")
	assert.Error(t, err)
	_, err = prov.ListAlerts(ctx, "b", 5)
	assert.Error(t, err)
}

func TestSortableTimeOrdersChronologically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := attemptSK(base.Add(900*time.Millisecond), "z")
	b := attemptSK(base.Add(time.Second), "a")
	assert.Less(t, a, b)
}

func TestNewRequiresTableName(t *testing.T) {
	_, err := New(&types.DynamoDBConfig{})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}
