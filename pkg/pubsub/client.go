package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Bundling for the outbox relay, which hands over a whole batch and then waits.
var publishSettings = func() pubsub.PublishSettings {
	s := pubsub.DefaultPublishSettings
	s.DelayThreshold = 5 * time.Millisecond
	s.CountThreshold = 100
	s.Timeout = 30 * time.Second
	return s
}()

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// topicAdmin is the slice of the admin API the client needs.
type topicAdmin interface {
	getTopic(ctx context.Context, name string) error
	createTopic(ctx context.Context, name string) error
}

type Client struct {
	client    *pubsub.Client
	admin     topicAdmin
	projectID string
	topics    []string
	create    bool
}

// NewClient connects to Pub/Sub and checks that every configured topic exists,
// creating missing ones when cfg.CreateTopics is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics, err := topicNames(projectID, cfg)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    psClient,
		admin:     gcpAdmin{psClient},
		projectID: projectID,
		topics:    topics,
		create:    cfg.CreateTopics,
	}
	if err := c.ensureTopics(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client initialized")
	}
	return c, nil
}

func topicNames(projectID string, cfg config.PubSubConfig) ([]string, error) {
	var names []string
	for _, short := range []string{cfg.OrdersTopic} {
		if full := resourceName(projectID, "topics", short); full != "" {
			names = append(names, full)
		}
	}
	if len(names) == 0 {
		return nil, errNoTopics
	}
	return names, nil
}

func (c *Client) ensureTopics(ctx context.Context) error {
	for _, name := range c.topics {
		err := c.admin.getTopic(ctx, name)
		if status.Code(err) == codes.NotFound && c.create {
			err = c.admin.createTopic(ctx, name)
			if status.Code(err) == codes.AlreadyExists {
				err = nil
			}
		}
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %s does not exist", name)
		default:
			return fmt.Errorf("checking topic %s: %w", name, err)
		}
	}
	return nil
}

// Publisher returns a bundling publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, "topics", name)
	if fullName == "" {
		return nil
	}
	p := c.client.Publisher(fullName)
	p.PublishSettings = publishSettings
	return p
}

// Ping checks the configured topics are still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.admin == nil {
		return errNotInitialized
	}
	for _, name := range c.topics {
		if err := c.admin.getTopic(ctx, name); err != nil {
			return fmt.Errorf("topic %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short id into projects/<p>/<kind>/<id>; full names pass through.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/"):
		return n
	case strings.TrimSpace(projectID) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(projectID) + "/" + kind + "/" + n
}

type gcpAdmin struct {
	c *pubsub.Client
}

func (a gcpAdmin) getTopic(ctx context.Context, name string) error {
	_, err := a.c.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return err
}

func (a gcpAdmin) createTopic(ctx context.Context, name string) error {
	_, err := a.c.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: name})
	return err
}
