package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublisher narrows a Pub/Sub publisher to the interface the service
// needs so tests can substitute in-memory fakes.
type topicPublisher struct {
	pub *gcppubsub.Publisher
}

func wrapTopic(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return topicPublisher{pub: p}
}

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	res := t.pub.Publish(ctx, msg)
	if res == nil {
		return nil
	}
	return topicResult{res: res}
}

type topicResult struct {
	res *gcppubsub.PublishResult
}

func (r topicResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("missing publish result")
	}
	return r.res.Get(ctx)
}
