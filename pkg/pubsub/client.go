package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/logger"
)

// route pairs a negotiation topic with the subscription that drains it.
type route struct {
	name         string
	topic        string
	subscription string
}

func routes(cfg config.PubSubConfig) []route {
	all := []route{
		{"domain", cfg.DomainTopic, cfg.DomainSubscription},
		{"notification", cfg.NotificationTopic, cfg.NotificationSubscription},
		{"analytics", cfg.AnalyticsTopic, cfg.AnalyticsSubscription},
	}
	out := all[:0]
	for _, r := range all {
		r.topic, r.subscription = strings.TrimSpace(r.topic), strings.TrimSpace(r.subscription)
		if r.subscription != "" {
			out = append(out, r)
		}
	}
	return out
}

type subscriptionLookup func(ctx context.Context, fullName string) (*pubsubpb.Subscription, error)

type Client struct {
	client          *pubsub.Client
	projectID       string
	routes          []route
	getSubscription subscriptionLookup
}

// NewClient opens Pub/Sub and checks that every negotiation subscription
// exists and reads from its configured topic.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    psClient,
		projectID: projectID,
		routes:    routes(cfg),
		getSubscription: func(ctx context.Context, fullName string) (*pubsubpb.Subscription, error) {
			return psClient.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: fullName})
		},
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "routes", len(c.routes)), "pubsub client initialized")
	}
	return c, nil
}

// Ping reports every route whose subscription is missing or attached to the wrong topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.getSubscription == nil {
		return errors.New("pubsub client not initialized")
	}
	if len(c.routes) == 0 {
		return errors.New("pubsub subscription name is required")
	}
	var err error
	for _, r := range c.routes {
		err = multierr.Append(err, c.checkRoute(ctx, r))
	}
	return err
}

func (c *Client) checkRoute(ctx context.Context, r route) error {
	sub, err := c.getSubscription(ctx, c.subscriptionResourceName(r.subscription))
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s subscription %q does not exist", r.name, r.subscription)
	case err != nil:
		return fmt.Errorf("checking %s subscription %q: %w", r.name, r.subscription, err)
	}
	if r.topic == "" {
		return nil
	}
	if want := c.topicResourceName(r.topic); sub.GetTopic() != want {
		return fmt.Errorf("%s subscription %q reads %q, want %q", r.name, r.subscription, sub.GetTopic(), want)
	}
	return nil
}

// Subscription returns a subscriber for a subscription ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if fullName := c.subscriptionResourceName(name); fullName != "" {
		return c.client.Subscriber(fullName)
	}
	return nil
}

func (c *Client) routeSubscriber(name string) *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	for _, r := range c.routes {
		if r.name == name {
			return c.Subscription(r.subscription)
		}
	}
	return nil
}

// DomainSubscription feeds the applications sync consumer.
func (c *Client) DomainSubscription() *pubsub.Subscriber { return c.routeSubscriber("domain") }

// NotificationSubscription feeds the in-app notification consumer.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.routeSubscriber("notification")
}

// AnalyticsSubscription feeds the negotiation events warehouse writer.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber { return c.routeSubscriber("analytics") }

// Publisher returns a publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if fullName := c.topicResourceName(name); fullName != "" {
		return c.client.Publisher(fullName)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return c.resourceName("subscriptions", name)
}

func (c *Client) topicResourceName(name string) string {
	return c.resourceName("topics", name)
}

// resourceName expands an ID to projects/<project>/<kind>/<id>. Full names pass through.
func (c *Client) resourceName(kind, name string) string {
	n := strings.TrimSpace(name)
	if c == nil || n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", c.projectID, kind, n)
}
