//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/sachanni/salonhub-geocache/internal/adapter/kafka"
	"github.com/sachanni/salonhub-geocache/internal/config"
	"github.com/sachanni/salonhub-geocache/internal/domain"
	"github.com/sachanni/salonhub-geocache/internal/geocache"
	"github.com/sachanni/salonhub-geocache/internal/observability"
	"github.com/sachanni/salonhub-geocache/internal/pipeline"
	"github.com/sachanni/salonhub-geocache/internal/store/memory"
)

const (
	testQueryTopic  = "test-queries"
	testResultTopic = "test-results"
	testDriftTopic  = "test-drift"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("geocache-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaQueryTopic:    testQueryTopic,
		KafkaResultTopic:   testResultTopic,
		KafkaDriftTopic:    testDriftTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

// stubProvider knows a single place and counts forward lookups.
type stubProvider struct {
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) ForwardLookup(_ context.Context, query string, _ domain.GeocodeOptions) (domain.ProviderResult, bool) {
	p.calls.Add(1)
	if domain.Normalize(query) != "connaught place" {
		return domain.ProviderResult{}, false
	}
	return domain.ProviderResult{
		PlaceID:          "ChIJ_cp",
		FormattedAddress: "Connaught Place, New Delhi, Delhi 110001, India",
		Latitude:         28.6315,
		Longitude:        77.2167,
		LocationType:     domain.LocationTypeGeometricCenter,
	}, true
}

func (p *stubProvider) ReverseLookup(context.Context, float64, float64) (domain.ProviderResult, bool) {
	return domain.ProviderResult{}, false
}

type resultMessage struct {
	Result  domain.ResolvedQuery
	Key     string
	Headers map[string]string
}

func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from result topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var result domain.ResolvedQuery
	require.NoError(t, json.Unmarshal(msg.Value, &result))
	return resultMessage{Result: result, Key: string(msg.Key), Headers: headers}
}

func newConsumer(broker, topic string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
}

func publish(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testQueryTopic}
	defer producer.Close()
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func request(t *testing.T, id, query string) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(domain.GeocodeRequest{RequestID: id, Query: query})
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(id), Value: payload}
}

// TestKafkaReaderWriter round-trips one request through the adapters.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testQueryTopic)
	createTopic(t, broker, testResultTopic)
	cfg := testConfig(broker, "test-reader")

	publish(ctx, t, broker, request(t, "req-1", "Connaught Place"))

	// The consumer group may need a rebalance before partitions are assigned.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawMessage
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.Equal(t, testQueryTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	resolvedAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, writer.LoadBatch(ctx, []domain.ResolvedQuery{{
		RequestID:  "req-1",
		Query:      "Connaught Place",
		Found:      true,
		Location:   &domain.LocationResult{PlaceID: "ChIJ_cp"},
		ResolvedAt: resolvedAt,
	}}))

	consumer := newConsumer(broker, testResultTopic)
	t.Cleanup(func() { _ = consumer.Close() })

	rm := readResult(ctx, t, consumer)
	assert.Equal(t, "req-1", rm.Key)
	assert.Equal(t, "true", rm.Headers["found"])
	assert.Equal(t, resolvedAt.Format(time.RFC3339), rm.Headers["resolved_at"])
	assert.Equal(t, "ChIJ_cp", rm.Result.Location.PlaceID)
}

// TestWarmerEndToEnd runs reader, cache and writer together. Repeated queries
// after the first are served from the cache, and a malformed message is
// skipped without stopping the warmer.
func TestWarmerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testQueryTopic)
	createTopic(t, broker, testResultTopic)
	cfg := testConfig(broker, "test-warmer")

	publish(ctx, t, broker,
		request(t, "req-1", "Connaught Place"),
		kafkago.Message{Key: []byte("poison"), Value: []byte("not-json{{{")},
		request(t, "req-2", "connaught-place"),
		request(t, "req-3", "Nowhere Junction"),
	)

	provider := &stubProvider{}
	store := memory.New()
	metrics := observability.NewMetricsForTesting()
	svc := geocache.New(provider, store.Aliases(), store, discardLogger(), metrics)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, pipeline.NewResolver(svc, nil, discardLogger()), writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newConsumer(broker, testResultTopic)
	t.Cleanup(func() { _ = consumer.Close() })

	byID := map[string]domain.ResolvedQuery{}
	for len(byID) < 3 {
		rm := readResult(ctx, t, consumer)
		byID[rm.Key] = rm.Result
	}

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "the malformed message produces no result")

	pipelineCancel()
	require.NoError(t, <-errCh)

	first, second, missing := byID["req-1"], byID["req-2"], byID["req-3"]
	require.True(t, first.Found)
	assert.False(t, first.Location.CacheHit)
	require.True(t, second.Found)
	assert.True(t, second.Location.CacheHit, "same place after normalization")
	assert.Equal(t, first.Location.PlaceID, second.Location.PlaceID)
	assert.False(t, missing.Found)

	assert.Equal(t, int32(2), provider.calls.Load(), "one fill plus the unknown query")
	require.NoError(t, p.CheckReadiness(ctx))
}

// TestDriftPublisher checks that audit findings land on the drift topic.
func TestDriftPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testDriftTopic)
	cfg := testConfig(broker, "test-drift")

	pub := kafka.NewDriftPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = pub.Close() })

	require.NoError(t, pub.PublishDrift(ctx, []domain.DriftFinding{
		{Name: "Select Citywalk", Status: domain.DriftWarning, DistanceMeters: 120, CheckedAt: time.Now()},
	}))

	consumer := newConsumer(broker, testDriftTopic)
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)

	var finding domain.DriftFinding
	require.NoError(t, json.Unmarshal(msg.Value, &finding))
	assert.Equal(t, "Select Citywalk", string(msg.Key))
	assert.Equal(t, domain.DriftWarning, finding.Status)
	assert.InDelta(t, 120.0, finding.DistanceMeters, 0)
}
