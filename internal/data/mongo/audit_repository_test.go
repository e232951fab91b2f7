package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bank-reconciliation/internal/domain/audit"
)

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Create(ctx context.Context, record *audit.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID, limit, offset int) ([]*audit.Record, error) {
	args := m.Called(ctx, transactionID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

func (m *MockAuditRepository) CountByTransaction(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuditRepository) ListByTimeRange(ctx context.Context, companyID uuid.UUID, startTime, endTime time.Time, limit, offset int) ([]*audit.Record, error) {
	args := m.Called(ctx, companyID, startTime, endTime, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

func TestNewAuditRepository(t *testing.T) {
	db := &mongo.Database{}
	logger := slog.Default()

	repo := NewAuditRepository(logger, db)

	assert.NotNil(t, repo)
	assert.IsType(t, &AuditRepository{}, repo)
}

func TestAuditRepository_Create(t *testing.T) {
	mockRepo := &MockAuditRepository{}
	ctx := context.Background()

	record := audit.NewRecord(uuid.New(), uuid.New(), audit.EventAutoMatched,
		json.RawMessage(`{"confidence":"98.5"}`))
	record.WithReconciliation(uuid.New())

	tests := []struct {
		name          string
		setupMocks    func()
		expectedError error
	}{
		{
			name: "success",
			setupMocks: func() {
				mockRepo.On("Create", ctx, record).Return(nil).Once()
			},
			expectedError: nil,
		},
		{
			name: "insert failure",
			setupMocks: func() {
				mockRepo.On("Create", ctx, record).Return(errors.New("write failed")).Once()
			},
			expectedError: errors.New("write failed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMocks()

			err := mockRepo.Create(ctx, record)

			if tt.expectedError != nil {
				assert.EqualError(t, err, tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuditRepository_ListByTransaction(t *testing.T) {
	mockRepo := &MockAuditRepository{}
	ctx := context.Background()
	transactionID := uuid.New()

	trail := []*audit.Record{
		audit.NewRecord(uuid.New(), transactionID, audit.EventManualReview, nil),
		audit.NewRecord(uuid.New(), transactionID, audit.EventManualMatched, nil),
	}

	mockRepo.On("ListByTransaction", ctx, transactionID, 20, 0).Return(trail, nil).Once()

	records, err := mockRepo.ListByTransaction(ctx, transactionID, 20, 0)

	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, audit.EventManualReview, records[0].Event)
	mockRepo.AssertExpectations(t)
}

func TestAuditRepository_CountByTransaction(t *testing.T) {
	mockRepo := &MockAuditRepository{}
	ctx := context.Background()
	transactionID := uuid.New()

	mockRepo.On("CountByTransaction", ctx, transactionID).Return(int64(3), nil).Once()

	count, err := mockRepo.CountByTransaction(ctx, transactionID)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
	mockRepo.AssertExpectations(t)
}
