package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/fundledger-backend/pkg/config"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one pubsub topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

// resource is a topic or subscription the ledger depends on.
type resource struct {
	kind resourceKind
	name string
}

// Client publishes ledger events and verifies that the configured topics
// and subscriptions exist before and while the publisher runs.
type Client struct {
	client    *pubsub.Client
	projectID string
	required  []resource
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	required := requiredResources(cfg)
	if !hasTopic(required) {
		return nil, errNoTopics
	}

	psClient, err := pubsub.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, required: required}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "pubsub_resources", len(required)), "pubsub client initialized")
	return c, nil
}

// credentialOptions prefers inline JSON, then a credentials file, and
// otherwise falls back to application default credentials.
func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

func requiredResources(cfg config.PubSubConfig) []resource {
	candidates := []resource{
		{kindTopic, cfg.ReconciliationTopic},
		{kindTopic, cfg.NotificationTopic},
		{kindSubscription, cfg.ReconciliationSubscription},
		{kindSubscription, cfg.NotificationSubscription},
	}
	out := make([]resource, 0, len(candidates))
	for _, r := range candidates {
		if r.name = strings.TrimSpace(r.name); r.name != "" {
			out = append(out, r)
		}
	}
	return out
}

func hasTopic(resources []resource) bool {
	for _, r := range resources {
		if r.kind == kindTopic {
			return true
		}
	}
	return false
}

// Ping confirms every required topic and subscription is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, r := range c.required {
		if err := c.lookup(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, r resource) error {
	fullName := c.resourceName(r.kind, r.name)
	var err error
	switch r.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: fullName})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(string(r.kind), "s"), r.name)
	default:
		return fmt.Errorf("check pubsub %s %q: %w", strings.TrimSuffix(string(r.kind), "s"), r.name, err)
	}
}

// Publisher returns a publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.resourceName(kindTopic, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short name to projects/<p>/<kind>/<name>. Names
// that are already fully qualified pass through unchanged.
func (c *Client) resourceName(kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if c == nil || n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + string(kind) + "/" + n
}
