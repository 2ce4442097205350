package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// publisherCache keeps one ordered publisher per topic for the life of the
// process; Pub/Sub publishers batch internally and are meant to be reused.
type publisherCache struct {
	client pubSubClient

	mu     sync.Mutex
	topics map[string]*gcppubsub.Publisher
}

func newPublisherCache(client pubSubClient) *publisherCache {
	return &publisherCache{client: client, topics: map[string]*gcppubsub.Publisher{}}
}

func (c *publisherCache) get(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.topics[topic]
	if !ok {
		p = c.client.Publisher(topic)
		if p == nil {
			return nil
		}
		p.EnableMessageOrdering = true
		c.topics[topic] = p
	}
	return &gcpPublisher{p: p}
}

func (c *publisherCache) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, p := range c.topics {
		p.Stop()
		delete(c.topics, topic)
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{g.p.Publish(ctx, msg)}
}

func (g *gcpPublisher) ResumePublish(orderingKey string) {
	g.p.ResumePublish(orderingKey)
}

type gcpResult struct {
	r *gcppubsub.PublishResult
}

func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("publish result is nil")
	}
	return g.r.Get(ctx)
}
