package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"hemolink/internal/platform/metrics"
)

type scriptedClient struct {
	mu        sync.Mutex
	polls     []kgo.Fetches
	committed []*kgo.Record
}

func (c *scriptedClient) PollFetches(context.Context) kgo.Fetches {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.polls) == 0 {
		return closedFetches()
	}
	next := c.polls[0]
	c.polls = c.polls[1:]
	return next
}

func (c *scriptedClient) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, rs...)
	return nil
}

func closedFetches() kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Partitions: []kgo.FetchPartition{{Partition: -1, Err: kgo.ErrClientClosed}},
	}}}}
}

func fetchesOf(topic string, records ...*kgo.Record) kgo.Fetches {
	for i, r := range records {
		r.Topic = topic
		r.Offset = int64(i)
	}
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      topic,
		Partitions: []kgo.FetchPartition{{Partition: 0, Records: records}},
	}}}}
}

func TestRunHandlesAndCommitsInOrder(t *testing.T) {
	client := &scriptedClient{polls: []kgo.Fetches{
		fetchesOf("hemolink.requests",
			&kgo.Record{Key: []byte("a"), Value: []byte("1"), Headers: []kgo.RecordHeader{{Key: "source", Value: []byte("hospital")}}},
			&kgo.Record{Key: []byte("b"), Value: []byte("2")},
		),
		fetchesOf("hemolink.responses", &kgo.Record{Key: []byte("c"), Value: []byte("3")}),
	}}

	var seen []string
	var headers []map[string]string
	handler := HandlerFunc(func(_ context.Context, msg *Message) error {
		seen = append(seen, msg.Topic+"/"+string(msg.Key))
		headers = append(headers, msg.Headers)
		if string(msg.Key) == "b" {
			return errors.New("bad payload")
		}
		return nil
	})

	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	c := New(client, handler, slog.New(slog.NewTextHandler(io.Discard, nil)), WithMetrics(m))
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"hemolink.requests/a", "hemolink.requests/b", "hemolink.responses/c"}, seen)
	assert.Equal(t, "hospital", headers[0]["source"])
	assert.Len(t, client.committed, 3, "failed records are committed too")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesHandled.WithLabelValues("hemolink.requests", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesHandled.WithLabelValues("hemolink.responses", "ok")))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{polls: []kgo.Fetches{
		fetchesOf("hemolink.requests", &kgo.Record{Key: []byte("a")}),
	}}

	called := false
	c := New(client, HandlerFunc(func(context.Context, *Message) error {
		called = true
		return nil
	}), nil)

	require.NoError(t, c.Run(ctx))
	assert.False(t, called)
}
