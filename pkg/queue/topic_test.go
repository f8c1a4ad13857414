package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mdalvi/mc-broker-api/pkg/queue"
)

type mockClock struct {
	current time.Time
}

func (m *mockClock) Now() time.Time        { return m.current }
func (m *mockClock) Sleep(d time.Duration) { m.current = m.current.Add(d) }

type mockKafkaConn struct {
	createdTopics  []string
	readPartitions []string
}

func (m *mockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *mockKafkaConn) Close() error { return nil }
func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.createdTopics = append(m.createdTopics, t.Topic)
	}
	return nil
}
func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	m.readPartitions = append(m.readPartitions, topics...)
	// Ready immediately
	return []kafka.Partition{{ID: 0}}, nil
}

type mockKafkaDialer struct {
	connSpy *mockKafkaConn
	dialErr error
	dialed  []string
}

func (m *mockKafkaDialer) DialContext(_ context.Context, _, address string) (queue.KafkaConn, error) {
	m.dialed = append(m.dialed, address)
	if m.dialErr != nil {
		return nil, m.dialErr
	}
	if m.connSpy == nil {
		m.connSpy = &mockKafkaConn{}
	}
	return m.connSpy, nil
}

func TestTopicCreator_Flow(t *testing.T) {
	dialer := &mockKafkaDialer{}
	tc := queue.NewTopicCreator(zap.NewNop(), dialer, &mockClock{})

	tc.Create([]string{"broker:9092"}, queue.TaskCacheTicks)

	if dialer.connSpy == nil {
		t.Fatal("Dialer was never called")
	}
	if len(dialer.connSpy.createdTopics) == 0 {
		t.Fatal("No topics created")
	}
	if dialer.connSpy.createdTopics[0] != queue.TaskCacheTicks {
		t.Errorf("Expected topic %q, got %s", queue.TaskCacheTicks, dialer.connSpy.createdTopics[0])
	}
	if len(dialer.connSpy.readPartitions) == 0 {
		t.Error("Expected a readiness check against the new topic")
	}
}

func TestTopicCreator_DialFailureIsNonFatal(t *testing.T) {
	dialer := &mockKafkaDialer{dialErr: errors.New("no route to broker")}
	tc := queue.NewTopicCreator(zap.NewNop(), dialer, &mockClock{})

	// Bootstrap is best-effort; a dead broker must not take the process down
	tc.Create([]string{"broker-a:9092", "broker-b:9092"}, queue.TaskCacheTicks)

	if len(dialer.dialed) != 2 {
		t.Errorf("Expected both brokers tried, got %v", dialer.dialed)
	}
}
