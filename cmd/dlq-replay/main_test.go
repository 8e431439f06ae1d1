package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
)

func dlqMessage(t *testing.T, partition int32, offset int64, outboxID string) *sarama.ConsumerMessage {
	t.Helper()
	record, err := json.Marshal(map[string]any{
		"outbox_id":      outboxID,
		"aggregate_type": domain.AggregateOrder,
		"aggregate_id":   "order-" + outboxID,
		"event_type":     domain.EventOrderCheckedOut,
		"payload":        map[string]any{"status": "Processed"},
		"publish_error":  "broker unavailable",
	})
	if err != nil {
		t.Fatalf("marshal dlq record: %v", err)
	}
	envelope, err := json.Marshal(kafka.Envelope{
		ID:            outboxID,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-" + outboxID,
		EventType:     domain.EventOrderCheckedOut,
		Payload:       record,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Partition: partition, Offset: offset, Value: envelope}
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-limit=10",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}, func(string) string { return "" }, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if len(cfg.brokers) != 2 || cfg.limit != 10 || !cfg.execute || !cfg.fromNewest {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.sourceTopic != kafka.TopicDeadLetterQueue || cfg.targetTopic != "" {
		t.Fatalf("unexpected topics: %q -> %q", cfg.sourceTopic, cfg.targetTopic)
	}
	if cfg.idleTimeout != 3*time.Second {
		t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
	}

	cfg, err = parseConfig(nil, func(key string) string {
		if key == "KAFKA_BROKERS" {
			return "env-broker:9092"
		}
		return ""
	}, io.Discard)
	if err != nil || len(cfg.brokers) != 1 || cfg.brokers[0] != "env-broker:9092" {
		t.Fatalf("expected brokers from env, got %+v (%v)", cfg.brokers, err)
	}
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	noEnv := func(string) string { return "" }
	tests := []struct {
		args []string
		want string
	}{
		{[]string{}, "kafka brokers are required"},
		{[]string{"-brokers=b:9092", "-source-topic= "}, "source-topic is required"},
		{[]string{"-brokers=b:9092", "-target-topic=" + kafka.TopicDeadLetterQueue}, "target-topic must differ"},
		{[]string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
	}
	for _, tt := range tests {
		_, err := parseConfig(tt.args, noEnv, io.Discard)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("args %v: expected %q, got %v", tt.args, tt.want, err)
		}
	}
}

func TestExtractReplayEvent(t *testing.T) {
	event, err := extractReplayEvent(dlqMessage(t, 0, 0, "evt-1"))
	if err != nil {
		t.Fatalf("extractReplayEvent failed: %v", err)
	}
	if event.ID != "evt-1" || event.AggregateID != "order-evt-1" || event.EventType != domain.EventOrderCheckedOut {
		t.Fatalf("unexpected event: %+v", event)
	}
	if string(event.Payload) != `{"status":"Processed"}` {
		t.Fatalf("unexpected payload: %s", event.Payload)
	}
}

func TestExtractReplayEvent_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `not-json`,
		"no payload":      `{"id":"x"}`,
		"payload string":  `{"id":"x","payload":"not-an-object"}`,
		"no nested event": `{"id":"x","payload":{"outbox_id":"x","event_type":"order.updated"}}`,
	}
	for name, raw := range cases {
		if _, err := extractReplayEvent(&sarama.ConsumerMessage{Value: []byte(raw)}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("unexpected first non-empty value: %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestProcessPartition_DryRun(t *testing.T) {
	deps := replayDependencies{
		client: &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}},
		consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer(dlqMessage(t, 0, 0, "evt-1"), dlqMessage(t, 0, 1, "evt-2")),
		}},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), cfg, deps, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats != (replayStats{processed: 2, replayed: 2}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestProcessPartition_Execute(t *testing.T) {
	publisher := &recordingPublisher{}
	deps := replayDependencies{
		client: &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}},
		consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer(
				dlqMessage(t, 0, 0, "evt-1"),
				&sarama.ConsumerMessage{Partition: 0, Offset: 1, Value: []byte(`{"id":"x"}`)},
				dlqMessage(t, 0, 2, "evt-3"),
			),
		}},
		publisher: publisher,
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, execute: true, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), cfg, deps, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats != (replayStats{processed: 3, replayed: 2, skipped: 1}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(publisher.events) != 2 || publisher.events[1].ID != "evt-3" {
		t.Fatalf("unexpected published events: %+v", publisher.events)
	}

	publisher.err = errors.New("send failed")
	deps.consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(dlqMessage(t, 0, 0, "evt-1")),
	}}
	if _, err := processPartition(context.Background(), cfg, deps, 0, 10); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestProcessPartition_FromNewest(t *testing.T) {
	source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer()}}
	deps := replayDependencies{
		client:   &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 5, newest: 50}}},
		consumer: source,
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, fromNewest: true, idleTimeout: 20 * time.Millisecond}

	if _, err := processPartition(context.Background(), cfg, deps, 0, 10); err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if len(source.offsets) != 1 || source.offsets[0] != 40 {
		t.Fatalf("expected consumption from offset 40, got %v", source.offsets)
	}
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 20 * time.Millisecond}
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	deps := replayDependencies{client: &stubOffsetClient{offsetErr: errors.New("offset")}, consumer: &stubPartitionConsumerSource{}}
	if _, err := processPartition(context.Background(), cfg, deps, 0, 1); err == nil {
		t.Fatal("expected offset error")
	}

	deps = replayDependencies{client: client, consumer: &stubPartitionConsumerSource{consumeErr: errors.New("consume")}}
	if _, err := processPartition(context.Background(), cfg, deps, 0, 1); err == nil {
		t.Fatal("expected consume error")
	}

	failing := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	failing.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	deps = replayDependencies{client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: failing}}}
	if _, err := processPartition(context.Background(), cfg, deps, 0, 1); err == nil {
		t.Fatal("expected consumer error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idle := &stubPartitionConsumer{messages: make(chan *sarama.ConsumerMessage), errors: make(chan *sarama.ConsumerError)}
	deps = replayDependencies{client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idle}}}
	if _, err := processPartition(ctx, cfg, deps, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestProcessPartition_IdleTimeout(t *testing.T) {
	idle := &stubPartitionConsumer{messages: make(chan *sarama.ConsumerMessage), errors: make(chan *sarama.ConsumerError)}
	deps := replayDependencies{
		client:   &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}},
		consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idle}},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 10 * time.Millisecond}

	stats, err := processPartition(context.Background(), cfg, deps, 0, 1)
	if err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if stats.processed != 0 {
		t.Fatalf("expected processed=0, got %+v", stats)
	}
}

func TestRunReplay(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 1, idleTimeout: 20 * time.Millisecond}

	if _, err := runReplay(context.Background(), cfg, replayDependencies{}); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 1},
			2: {oldest: 0, newest: 1},
		},
	}
	source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(dlqMessage(t, 0, 0, "evt-1")),
		2: closedPartitionConsumer(dlqMessage(t, 2, 0, "evt-2")),
	}}
	deps := replayDependencies{client: client, consumer: source}

	stats, err := runReplay(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if stats.processed != 1 || len(source.partitions) != 1 || source.partitions[0] != 0 {
		t.Fatalf("limit must stop after the lowest partition: stats=%+v partitions=%v", stats, source.partitions)
	}

	cfg.execute = true
	if _, err := runReplay(context.Background(), cfg, deps); err == nil {
		t.Fatal("expected publisher requirement in execute mode")
	}

	client.partitionsErr = errors.New("metadata")
	cfg.execute = false
	if _, err := runReplay(context.Background(), cfg, deps); err == nil {
		t.Fatal("expected partitions error")
	}
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     error
}

func (c *stubOffsetClient) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if c.offsetErr != nil {
		return 0, c.offsetErr
	}
	r := c.offsets[partition]
	if at == sarama.OffsetOldest {
		return r.oldest, nil
	}
	return r.newest, nil
}

func (c *stubOffsetClient) Partitions(string) ([]int32, error) {
	return c.partitions, c.partitionsErr
}

func (c *stubOffsetClient) Close() error { return nil }

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func closedPartitionConsumer(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	pc := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(messages)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, msg := range messages {
		pc.messages <- msg
	}
	close(pc.messages)
	return pc
}

func (p *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return p.errors }
func (p *stubPartitionConsumer) Close() error                             { return nil }

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	partitions []int32
	offsets    []int64
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	s.partitions = append(s.partitions, partition)
	s.offsets = append(s.offsets, offset)
	return s.consumers[partition], nil
}

func (s *stubPartitionConsumerSource) Close() error { return nil }

type recordingPublisher struct {
	events []domain.OutboxMessage
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}
