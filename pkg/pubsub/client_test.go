package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregHandsley/pokeflip-sub002/pkg/config"
)

type fakeAdmin struct {
	mu       sync.Mutex
	existing map[string]bool
	created  []string
	getErr   error
}

func (f *fakeAdmin) GetTopic(_ context.Context, req *pubsubpb.GetTopicRequest, _ ...gax.CallOption) (*pubsubpb.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if !f.existing[req.GetTopic()] {
		return nil, status.Error(codes.NotFound, "no topic")
	}
	return &pubsubpb.Topic{Name: req.GetTopic()}, nil
}

func (f *fakeAdmin) CreateTopic(_ context.Context, t *pubsubpb.Topic, _ ...gax.CallOption) (*pubsubpb.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[t.GetName()] = true
	f.created = append(f.created, t.GetName())
	return t, nil
}

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/inv", topicResourceName("p1", "inv"))
	assert.Equal(t, "projects/other/topics/inv", topicResourceName("p1", "projects/other/topics/inv"))
	assert.Empty(t, topicResourceName("", "inv"))
	assert.Empty(t, topicResourceName("p1", "  "))
}

func TestTopicNamesSkipsBlankAndDuplicates(t *testing.T) {
	assert.Equal(t, []string{"inv"}, topicNames(config.PubSubConfig{InventoryTopic: " inv ", SalesTopic: ""}))
	assert.Equal(t, []string{"events"}, topicNames(config.PubSubConfig{InventoryTopic: "events", SalesTopic: "events"}))
	assert.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{}, config.PubSubConfig{}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}, config.PubSubConfig{}), 1)
	emulator := clientOptions(config.GCPConfig{CredentialsJSON: `{}`}, config.PubSubConfig{EmulatorHost: "localhost:8085"})
	assert.Len(t, emulator, 3, "emulator ignores credentials")
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{InventoryTopic: "inv"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p1"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errNoTopics)
}

func TestEnsureTopicsReportsMissingTopic(t *testing.T) {
	admin := &fakeAdmin{existing: map[string]bool{"projects/p1/topics/inv": true}}
	c := &Client{admin: admin, projectID: "p1", topics: []string{"inv", "sales"}}

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `topic "sales" does not exist`)
	assert.Empty(t, admin.created)
}

func TestEnsureTopicsCreatesWhenAllowed(t *testing.T) {
	admin := &fakeAdmin{existing: map[string]bool{}}
	c := &Client{admin: admin, projectID: "p1", topics: []string{"inv", "sales"}, create: true}

	require.NoError(t, c.Ping(context.Background()))
	assert.ElementsMatch(t, []string{"projects/p1/topics/inv", "projects/p1/topics/sales"}, admin.created)

	require.NoError(t, c.Ping(context.Background()))
	assert.Len(t, admin.created, 2)
}

func TestEnsureTopicsSurfacesAdminErrors(t *testing.T) {
	admin := &fakeAdmin{existing: map[string]bool{}, getErr: errors.New("permission denied")}
	c := &Client{admin: admin, projectID: "p1", topics: []string{"inv"}, create: true}

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checking topic")
	assert.Empty(t, admin.created)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("inv"))
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
}
