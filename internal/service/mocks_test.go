package service

import (
	"context"
	"io"

	"mailprobe/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetRelay(ctx context.Context, id int64) (*models.RelayConfig, error) {
	args := m.Called(ctx, id)
	if relay := args.Get(0); relay != nil {
		return relay.(*models.RelayConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStorage) ListEligibleRelays(ctx context.Context) ([]*models.RelayConfig, error) {
	args := m.Called(ctx)
	if relays := args.Get(0); relays != nil {
		return relays.([]*models.RelayConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStorage) IncrementDailySent(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStorage) ResetDailyCounters(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStorage) ListTemplates(ctx context.Context) ([]*models.MessageTemplate, error) {
	args := m.Called(ctx)
	if templates := args.Get(0); templates != nil {
		return templates.([]*models.MessageTemplate), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStorage) UpsertVerification(ctx context.Context, record *models.VerificationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockStorage) GetVerificationByRecipient(ctx context.Context, recipient string) (*models.VerificationRecord, error) {
	args := m.Called(ctx, recipient)
	if record := args.Get(0); record != nil {
		return record.(*models.VerificationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStorage) CleanupOldVerifications(ctx context.Context, retentionDays int) error {
	args := m.Called(ctx, retentionDays)
	return args.Error(0)
}

type mockHealthChecker struct {
	mock.Mock
}

func (m *mockHealthChecker) CheckConnection(ctx context.Context, relay *models.RelayConfig) models.HealthStatus {
	args := m.Called(ctx, relay)
	return args.Get(0).(models.HealthStatus)
}

type mockRelayPool struct {
	mock.Mock
}

func (m *mockRelayPool) SelectRelay(ctx context.Context) (*models.RelayConfig, error) {
	args := m.Called(ctx)
	if relay := args.Get(0); relay != nil {
		return relay.(*models.RelayConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRelayPool) TestRelay(ctx context.Context, relayID int64) (models.HealthStatus, error) {
	args := m.Called(ctx, relayID)
	return args.Get(0).(models.HealthStatus), args.Error(1)
}

type mockTemplateStore struct {
	mock.Mock
}

func (m *mockTemplateStore) SelectTemplate(ctx context.Context) (*models.MessageTemplate, error) {
	args := m.Called(ctx)
	if template := args.Get(0); template != nil {
		return template.(*models.MessageTemplate), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) Detect(ctx context.Context, relayID int64, recipient string) {
	m.Called(ctx, relayID, recipient)
}

// fakeSession is a canned IMAP session for detector tests.
type fakeSession struct {
	count      uint32
	bodies     [][]byte
	selectErr  error
	fetchErr   error
	closed     bool
	fetchedLo  uint32
	fetchedHi  uint32
	fetchCalls int
}

func (f *fakeSession) SelectInbox() (uint32, error) {
	if f.selectErr != nil {
		return 0, f.selectErr
	}
	return f.count, nil
}

func (f *fakeSession) FetchRange(lo, hi uint32) ([][]byte, error) {
	f.fetchCalls++
	f.fetchedLo = lo
	f.fetchedHi = hi
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.bodies, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}
