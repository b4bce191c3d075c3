package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		project, name, want string
	}{
		{"proj", "orders", "projects/proj/topics/orders"},
		{"proj", " orders ", "projects/proj/topics/orders"},
		{"proj", "projects/other/topics/orders", "projects/other/topics/orders"},
		{"", "orders", ""},
		{"proj", "  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resourceName(tt.project, "topics", tt.name), "%q/%q", tt.project, tt.name)
	}
}

func TestTopicNames(t *testing.T) {
	_, err := topicNames("proj", config.PubSubConfig{OrdersTopic: "  "})
	assert.ErrorIs(t, err, errNoTopics)

	names, err := topicNames("proj", config.PubSubConfig{OrdersTopic: "orders"})
	require.NoError(t, err)
	assert.Equal(t, []string{"projects/proj/topics/orders"}, names)
}

type fakeAdmin struct {
	existing map[string]bool
	getErr   error
	created  []string
}

func (f *fakeAdmin) getTopic(_ context.Context, name string) error {
	if f.getErr != nil {
		return f.getErr
	}
	if !f.existing[name] {
		return status.Error(codes.NotFound, "no topic")
	}
	return nil
}

func (f *fakeAdmin) createTopic(_ context.Context, name string) error {
	f.created = append(f.created, name)
	f.existing[name] = true
	return nil
}

func TestEnsureTopics(t *testing.T) {
	const topic = "projects/proj/topics/orders"

	missing := &fakeAdmin{existing: map[string]bool{}}
	c := &Client{admin: missing, topics: []string{topic}}
	assert.ErrorContains(t, c.ensureTopics(context.Background()), "does not exist")
	assert.Empty(t, missing.created)

	c.create = true
	require.NoError(t, c.ensureTopics(context.Background()))
	assert.Equal(t, []string{topic}, missing.created)
	assert.NoError(t, c.Ping(context.Background()))

	down := &fakeAdmin{getErr: status.Error(codes.Unavailable, "down")}
	c = &Client{admin: down, topics: []string{topic}, create: true}
	err := c.ensureTopics(context.Background())
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
	assert.Empty(t, down.created)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
	assert.Nil(t, c.Publisher("orders"))
}
