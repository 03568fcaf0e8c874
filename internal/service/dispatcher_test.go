package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mailprobe/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	store     *mockStorage
	pool      *mockRelayPool
	templates *mockTemplateStore
	detector  *mockDetector
	workers   *WorkerPool
	d         *dispatcher

	mu        sync.Mutex
	sentRaw   [][]byte
	sendErr   error
	sendCount int
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	f := &dispatcherFixture{
		store:     &mockStorage{},
		pool:      &mockRelayPool{},
		templates: &mockTemplateStore{},
		detector:  &mockDetector{},
		workers:   NewWorkerPool(2, 8, testLogger()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.workers.Start(ctx)
	t.Cleanup(func() {
		f.workers.Stop()
		cancel()
	})

	opts := DispatcherOptions{
		HeloDomain:  "probe.example.com",
		SendTimeout: time.Second,
		DelayMin:    0,
		DelayMax:    0,
	}
	f.d = NewDispatcher(f.store, f.pool, f.templates, f.detector, f.workers, opts, testLogger()).(*dispatcher)
	f.d.send = func(ctx context.Context, relay *models.RelayConfig, recipient string, raw []byte) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sendCount++
		f.sentRaw = append(f.sentRaw, raw)
		return f.sendErr
	}
	return f
}

func (f *dispatcherFixture) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCount
}

func testRelay() *models.RelayConfig {
	return &models.RelayConfig{
		ID:           1,
		Name:         "relay-1",
		EmailAddress: "probe@relay.example.com",
		Active:       true,
		DailyLimit:   5,
	}
}

func testTemplate() *models.MessageTemplate {
	return &models.MessageTemplate{ID: 1, Subject: "Quick question", Body: "Hi there"}
}

func TestDispatchInvalidRecipient(t *testing.T) {
	f := newDispatcherFixture(t)

	result := f.d.Dispatch(context.Background(), "not-an-address")

	assert.Equal(t, OutcomeInvalidInput, result.Outcome)
	assert.Zero(t, f.sends())
	f.store.AssertNotCalled(t, "GetVerificationByRecipient", mock.Anything, mock.Anything)
}

func TestDispatchAlreadyProcessed(t *testing.T) {
	f := newDispatcherFixture(t)

	existing := &models.VerificationRecord{Recipient: "a@x.com", Status: models.VerificationValid}
	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(existing, nil)

	result := f.d.Dispatch(context.Background(), "a@x.com")

	assert.Equal(t, OutcomeAlreadyProcessed, result.Outcome)
	assert.Zero(t, f.sends())
}

func TestDispatchNoRelayAvailable(t *testing.T) {
	f := newDispatcherFixture(t)

	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(nil, nil)
	f.pool.On("SelectRelay", mock.Anything).Return(nil, nil)

	result := f.d.Dispatch(context.Background(), "a@x.com")

	assert.Equal(t, OutcomeNoRelayAvailable, result.Outcome)
	assert.Zero(t, f.sends())
}

func TestDispatchNoTemplateAvailable(t *testing.T) {
	f := newDispatcherFixture(t)

	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(nil, nil)
	f.pool.On("SelectRelay", mock.Anything).Return(testRelay(), nil)
	f.templates.On("SelectTemplate", mock.Anything).Return(nil, nil)

	result := f.d.Dispatch(context.Background(), "a@x.com")

	assert.Equal(t, OutcomeNoTemplateAvailable, result.Outcome)
	assert.Zero(t, f.sends())
}

func TestDispatchSendFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.sendErr = errors.New("550 rejected")

	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(nil, nil)
	f.pool.On("SelectRelay", mock.Anything).Return(testRelay(), nil)
	f.templates.On("SelectTemplate", mock.Anything).Return(testTemplate(), nil)

	result := f.d.Dispatch(context.Background(), "a@x.com")

	assert.Equal(t, OutcomeSendFailed, result.Outcome)
	assert.Contains(t, result.Reason, "550")
	f.store.AssertNotCalled(t, "IncrementDailySent", mock.Anything, mock.Anything)
}

func TestDispatchSentIncrementsAndSchedules(t *testing.T) {
	f := newDispatcherFixture(t)

	detected := make(chan struct{})
	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(nil, nil)
	f.pool.On("SelectRelay", mock.Anything).Return(testRelay(), nil)
	f.templates.On("SelectTemplate", mock.Anything).Return(testTemplate(), nil)
	f.store.On("IncrementDailySent", mock.Anything, int64(1)).Return(true, nil)
	f.detector.On("Detect", mock.Anything, int64(1), "a@x.com").Run(func(args mock.Arguments) {
		close(detected)
	}).Return()

	result := f.d.Dispatch(context.Background(), "a@x.com")

	assert.Equal(t, OutcomeSent, result.Outcome)
	assert.Equal(t, int64(1), result.RelayID)
	assert.Equal(t, 1, f.sends())

	select {
	case <-detected:
	case <-time.After(2 * time.Second):
		t.Fatal("bounce check never ran")
	}
	f.store.AssertCalled(t, "IncrementDailySent", mock.Anything, int64(1))
}

func TestDispatchTwiceBeforeVerdict(t *testing.T) {
	f := newDispatcherFixture(t)

	block := make(chan struct{})
	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(nil, nil)
	f.pool.On("SelectRelay", mock.Anything).Return(testRelay(), nil)
	f.templates.On("SelectTemplate", mock.Anything).Return(testTemplate(), nil)
	f.store.On("IncrementDailySent", mock.Anything, int64(1)).Return(true, nil)
	f.detector.On("Detect", mock.Anything, int64(1), "a@x.com").Run(func(args mock.Arguments) {
		<-block
	}).Return()

	first := f.d.Dispatch(context.Background(), "a@x.com")
	second := f.d.Dispatch(context.Background(), "a@x.com")
	close(block)

	assert.Equal(t, OutcomeSent, first.Outcome)
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)
	assert.Equal(t, 1, f.sends(), "no second send")
	f.store.AssertNumberOfCalls(t, "IncrementDailySent", 1)
}

func TestDispatchRetryAfterSendFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.sendErr = errors.New("timeout")

	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(nil, nil)
	f.pool.On("SelectRelay", mock.Anything).Return(testRelay(), nil)
	f.templates.On("SelectTemplate", mock.Anything).Return(testTemplate(), nil)

	first := f.d.Dispatch(context.Background(), "a@x.com")
	require.Equal(t, OutcomeSendFailed, first.Outcome)

	// In-flight mark must be released so the recipient can be retried
	f.mu.Lock()
	f.sendErr = nil
	f.mu.Unlock()
	f.store.On("IncrementDailySent", mock.Anything, int64(1)).Return(true, nil)
	f.detector.On("Detect", mock.Anything, int64(1), "a@x.com").Return()

	second := f.d.Dispatch(context.Background(), "a@x.com")
	assert.Equal(t, OutcomeSent, second.Outcome)
}

func TestDispatchSchedulingFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.workers.Stop()

	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(nil, nil)
	f.pool.On("SelectRelay", mock.Anything).Return(testRelay(), nil)
	f.templates.On("SelectTemplate", mock.Anything).Return(testTemplate(), nil)
	f.store.On("IncrementDailySent", mock.Anything, int64(1)).Return(true, nil)

	result := f.d.Dispatch(context.Background(), "a@x.com")

	assert.Equal(t, OutcomeSendFailed, result.Outcome)
	assert.Contains(t, result.Reason, "scheduling")
}

func TestDispatchRandomizedDelayBounds(t *testing.T) {
	f := newDispatcherFixture(t)
	f.d.opts.DelayMin = 5 * time.Second
	f.d.opts.DelayMax = 10 * time.Second
	f.d.randInt = func(n int) int {
		assert.Equal(t, int(5*time.Second)+1, n)
		return 0
	}

	assert.Equal(t, 5*time.Second, f.d.bounceDelay())

	f.d.randInt = func(n int) int { return n - 1 }
	assert.Equal(t, 10*time.Second, f.d.bounceDelay())
}

func TestBuildProbeMessage(t *testing.T) {
	raw, err := buildProbeMessage("probe@relay.example.com", "target@example.com", testTemplate())
	require.NoError(t, err)

	msg := string(raw)
	assert.Contains(t, msg, "From: <probe@relay.example.com>")
	assert.Contains(t, msg, "To: <target@example.com>")
	assert.Contains(t, msg, "Subject: Quick question")
	assert.Contains(t, msg, "Hi there")
}

func TestGetVerdict(t *testing.T) {
	f := newDispatcherFixture(t)

	record := &models.VerificationRecord{Recipient: "a@x.com", Status: models.VerificationInvalid}
	f.store.On("GetVerificationByRecipient", mock.Anything, "a@x.com").Return(record, nil)

	got, err := f.d.GetVerdict(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationInvalid, got.Status)
}

func TestGetVerdictUnknownRecipient(t *testing.T) {
	f := newDispatcherFixture(t)

	f.store.On("GetVerificationByRecipient", mock.Anything, "nobody@x.com").Return(nil, nil)

	got, err := f.d.GetVerdict(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}
