package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
)

func TestSummarize(t *testing.T) {
	at := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	results := []*model.CleanupResult{
		{Success: true},
		{Success: true},
		{Success: false},
	}

	s := Summarize(results, true, at)

	assert.Equal(t, 2, s.SuccessCount)
	assert.Equal(t, 1, s.FailureCount)
	assert.True(t, s.DryRun)
	assert.Equal(t, at, s.Timestamp)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	assert.NoError(t, n.Notify(context.Background(), Summary{SuccessCount: 1}))
	assert.NoError(t, n.Notify(context.Background(), Summary{FailureCount: 1}))
}

func TestKafkaNotifier_Publishes(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	summary := Summary{SuccessCount: 4, FailureCount: 1, Timestamp: time.Unix(1_780_000_000, 0).UTC()}
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Summary
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.SuccessCount != 4 || got.FailureCount != 1 {
			return errors.New("unexpected summary payload")
		}
		return nil
	})

	n := NewKafkaNotifier(producer, "retention.cleanup", "eidos-retention")
	require.NoError(t, n.Notify(context.Background(), summary))
	require.NoError(t, n.Close())
}

func TestKafkaNotifier_SendError(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	n := NewKafkaNotifier(producer, "retention.cleanup", "")
	err := n.Notify(context.Background(), Summary{})

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, n.Close())
}

func TestDialKafkaNotifier_Validation(t *testing.T) {
	_, err := DialKafkaNotifier(KafkaConfig{Topic: "t"}, "")
	assert.Error(t, err)

	_, err = DialKafkaNotifier(KafkaConfig{Brokers: []string{"localhost:9092"}}, "")
	assert.Error(t, err)
}
