package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/testdata/mockpublisher"
	"beacon-admission-service/internal/testdata/mockrepository"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ConversionWorkerTestSuite struct {
	suite.Suite
	mockRepo      *mockrepository.ConversionRepository
	mockPublisher *mockpublisher.Publisher
	worker        *batchConversionWorker
}

func TestConversionWorkerSuite(t *testing.T) {
	suite.Run(t, new(ConversionWorkerTestSuite))
}

func (s *ConversionWorkerTestSuite) SetupTest() {
	s.mockRepo = new(mockrepository.ConversionRepository)
	s.mockPublisher = new(mockpublisher.Publisher)
}

func (s *ConversionWorkerTestSuite) TearDownTest() {
	s.mockRepo.AssertExpectations(s.T())
	s.mockPublisher.AssertExpectations(s.T())
}

func record(platform string) model.ConversionRecord {
	return model.ConversionRecord{
		EventID:   "evt-" + platform,
		ShopID:    "shop-1",
		OrderID:   "1001",
		Platform:  platform,
		EventType: model.EventCheckoutCompleted,
		Status:    model.ConversionStatusPending,
	}
}

func (s *ConversionWorkerTestSuite) TestBatchSizeTrigger() {
	batchSize := 3

	var wg sync.WaitGroup
	wg.Add(1)

	s.mockRepo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(records []model.ConversionRecord) bool {
		return len(records) == batchSize
	})).Return(nil).Once()
	s.mockPublisher.On("Publish", mock.Anything, mock.MatchedBy(func(jobs []model.ConversionJob) bool {
		return len(jobs) == batchSize && jobs[0].EventID == "evt-meta"
	})).Run(func(args mock.Arguments) {
		wg.Done()
	}).Return(nil).Once()

	s.worker = NewConversionWorker(s.mockRepo, s.mockPublisher, 10, batchSize, time.Hour)
	defer s.worker.Shutdown()

	s.worker.Enqueue(record("meta"), record("google"), record("tiktok"))

	s.waitForAsyncOp(&wg, "Batch Size Trigger")
}

func (s *ConversionWorkerTestSuite) TestTimeIntervalTrigger() {
	var wg sync.WaitGroup
	wg.Add(1)

	s.mockRepo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(records []model.ConversionRecord) bool {
		return len(records) == 2
	})).Run(func(args mock.Arguments) {
		wg.Done()
	}).Return(nil).Once()

	s.worker = NewConversionWorker(s.mockRepo, nil, 10, 10, 50*time.Millisecond)
	defer s.worker.Shutdown()

	s.worker.Enqueue(record("meta"), record("google"))

	s.waitForAsyncOp(&wg, "Time Interval Trigger")
}

func (s *ConversionWorkerTestSuite) TestShutdownFlush() {
	s.mockRepo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(records []model.ConversionRecord) bool {
		return len(records) == 4
	})).Return(nil).Once()
	s.mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	s.worker = NewConversionWorker(s.mockRepo, s.mockPublisher, 10, 10, time.Hour)
	for _, p := range []string{"meta", "google", "tiktok", "pinterest"} {
		s.worker.Enqueue(record(p))
	}

	s.worker.Shutdown()
}

func (s *ConversionWorkerTestSuite) TestEnqueueAfterShutdownIsDropped() {
	s.worker = NewConversionWorker(s.mockRepo, s.mockPublisher, 10, 10, time.Hour)
	s.worker.Shutdown()
	s.worker.Shutdown()

	s.NotPanics(func() { s.worker.Enqueue(record("meta")) })
	s.mockRepo.AssertNotCalled(s.T(), "UpsertBatch", mock.Anything, mock.Anything)
}

func (s *ConversionWorkerTestSuite) TestBatchFailureFallsBackPerRecord() {
	var wg sync.WaitGroup
	wg.Add(1)

	s.mockRepo.On("UpsertBatch", mock.Anything, mock.Anything).Return(errors.New("too many parts")).Once()
	s.mockRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(r model.ConversionRecord) bool {
		return r.Platform == "meta"
	})).Return(nil).Once()
	s.mockRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(r model.ConversionRecord) bool {
		return r.Platform == "google"
	})).Return(errors.New("bad row")).Once()
	s.mockPublisher.On("Publish", mock.Anything, mock.MatchedBy(func(jobs []model.ConversionJob) bool {
		return len(jobs) == 1 && jobs[0].Platform == "meta"
	})).Run(func(args mock.Arguments) {
		wg.Done()
	}).Return(nil).Once()

	s.worker = NewConversionWorker(s.mockRepo, s.mockPublisher, 10, 2, time.Hour)
	defer s.worker.Shutdown()

	s.worker.Enqueue(record("meta"), record("google"))

	s.waitForAsyncOp(&wg, "Per Record Fallback")
}

func (s *ConversionWorkerTestSuite) TestNothingPersistedNothingPublished() {
	var wg sync.WaitGroup
	wg.Add(1)

	s.mockRepo.On("UpsertBatch", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).Once()
	s.mockRepo.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { wg.Done() }).
		Return(context.DeadlineExceeded).Once()

	s.worker = NewConversionWorker(s.mockRepo, s.mockPublisher, 10, 1, time.Hour)
	defer s.worker.Shutdown()

	s.worker.Enqueue(record("meta"))

	s.waitForAsyncOp(&wg, "Nothing Persisted")
	s.mockPublisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything)
}

func (s *ConversionWorkerTestSuite) TestPublishErrorIsNotFatal() {
	var wg sync.WaitGroup
	wg.Add(2)

	s.mockRepo.On("UpsertBatch", mock.Anything, mock.Anything).Return(nil).Twice()
	s.mockPublisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { wg.Done() }).
		Return(errors.New("broker down")).Twice()

	s.worker = NewConversionWorker(s.mockRepo, s.mockPublisher, 10, 1, time.Hour)
	defer s.worker.Shutdown()

	s.worker.Enqueue(record("meta"))
	s.worker.Enqueue(record("google"))

	s.waitForAsyncOp(&wg, "Publish Error")
}

func (s *ConversionWorkerTestSuite) waitForAsyncOp(wg *sync.WaitGroup, testName string) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.T().Fatalf("Test '%s' timed out waiting for worker response", testName)
	}
}
