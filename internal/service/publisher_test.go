package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/testdata/mockkafka"
	"beacon-admission-service/internal/testdata/mockpublisher"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type PublisherTestSuite struct {
	suite.Suite
	writer    *mockkafka.Writer
	metrics   *mockpublisher.Metrics
	publisher *KafkaPublisher
	delays    []time.Duration
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherTestSuite))
}

func (s *PublisherTestSuite) SetupTest() {
	s.writer = new(mockkafka.Writer)
	s.metrics = new(mockpublisher.Metrics)
	s.delays = nil
	s.publisher = NewKafkaPublisherWithWriter(s.writer, "conversions.pending", RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
	}, s.metrics)
	s.publisher.sleep = func(_ context.Context, d time.Duration) error {
		s.delays = append(s.delays, d)
		return nil
	}
}

func (s *PublisherTestSuite) TearDownTest() {
	s.writer.AssertExpectations(s.T())
	s.metrics.AssertExpectations(s.T())
}

func job(platform string) model.ConversionJob {
	return model.ConversionJob{
		EventID:    "evt-1",
		ShopID:     "shop-1",
		OrderID:    "1001",
		Platform:   platform,
		EventType:  model.EventCheckoutCompleted,
		TrustLevel: model.TrustPartial,
	}
}

func (s *PublisherTestSuite) TestPublish() {
	s.writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 2 || string(msgs[0].Key) != "shop-1" {
			return false
		}
		var decoded model.ConversionJob
		if err := json.Unmarshal(msgs[1].Value, &decoded); err != nil {
			return false
		}
		return decoded.Platform == "google" && decoded.TrustLevel == model.TrustPartial
	})).Return(nil).Once()
	s.metrics.On("ConversionPublished", true).Return().Twice()

	err := s.publisher.Publish(context.Background(), job("meta"), job("google"))

	s.Require().NoError(err)
	s.Empty(s.delays)
}

func (s *PublisherTestSuite) TestPublishNothing() {
	s.Require().NoError(s.publisher.Publish(context.Background()))
	s.writer.AssertNotCalled(s.T(), "WriteMessages", mock.Anything, mock.Anything)
}

func (s *PublisherTestSuite) TestRetryThenSucceed() {
	s.writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available")).Twice()
	s.writer.On("WriteMessages", mock.Anything, mock.Anything).Return(nil).Once()
	s.metrics.On("ConversionPublished", true).Return().Once()

	err := s.publisher.Publish(context.Background(), job("meta"))

	s.Require().NoError(err)
	s.Equal([]time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, s.delays)
}

func (s *PublisherTestSuite) TestGiveUpAfterMaxAttempts() {
	s.writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Times(3)
	s.metrics.On("ConversionPublished", false).Return().Once()

	err := s.publisher.Publish(context.Background(), job("meta"))

	s.Require().Error(err)
	s.Contains(err.Error(), "after 3 attempts")
	s.Len(s.delays, 2)
}

func (s *PublisherTestSuite) TestCancelledDuringRetry() {
	s.writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	s.metrics.On("ConversionPublished", false).Return().Once()
	s.publisher.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	err := s.publisher.Publish(context.Background(), job("meta"))

	s.Require().ErrorIs(err, context.Canceled)
}

func (s *PublisherTestSuite) TestBackoffCappedAndJittered() {
	s.Equal(time.Second, s.publisher.backoff(10))

	s.publisher.retry.Jitter = true
	for i := 0; i < 50; i++ {
		d := s.publisher.backoff(1)
		s.GreaterOrEqual(d, 170*time.Millisecond)
		s.LessOrEqual(d, 230*time.Millisecond)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepCtx on cancelled context = %v, want context.Canceled", err)
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepCtx = %v, want nil", err)
	}
}
