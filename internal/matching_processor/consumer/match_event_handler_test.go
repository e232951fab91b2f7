package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bank-reconciliation/internal/domain/shared"
)

// MockMatchService for testing
type MockMatchService struct {
	mock.Mock
}

func (m *MockMatchService) ProcessMatchRequest(ctx context.Context, request *shared.MatchRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

// MockDeadLetterPublisher for testing
type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestHandleMessage(t *testing.T) {
	mockMatchService := &MockMatchService{}
	mockDLQPublisher := &MockDeadLetterPublisher{}
	logger := slog.Default()

	handler := NewMatchEventHandler(logger, mockMatchService, mockDLQPublisher)

	validRequest := &shared.MatchRequest{
		TransactionID: uuid.New(),
		CompanyID:     uuid.New(),
		BankAccountID: uuid.New(),
		Reason:        shared.MatchReasonIngested,
		CorrelationID: "corr1",
		Timestamp:     time.Now(),
	}

	validJSON, err := json.Marshal(validRequest)
	assert.NoError(t, err)

	tests := []struct {
		name          string
		key           []byte
		value         []byte
		setupMocks    func()
		expectedError error
	}{
		{
			name:  "successful matching",
			key:   []byte("test-key"),
			value: validJSON,
			setupMocks: func() {
				mockMatchService.On("ProcessMatchRequest", mock.Anything, mock.MatchedBy(func(req *shared.MatchRequest) bool {
					return req.TransactionID == validRequest.TransactionID
				})).Return(nil)
			},
			expectedError: nil,
		},
		{
			name:  "matching error",
			key:   []byte("test-key"),
			value: validJSON,
			setupMocks: func() {
				mockMatchService.On("ProcessMatchRequest", mock.Anything, mock.Anything).Return(errors.New("matching error"))
			},
			expectedError: errors.New("matching transaction"),
		},
		{
			name:  "unmarshal error with successful DLQ publish",
			key:   []byte("test-key"),
			value: []byte("invalid json"),
			setupMocks: func() {
				mockDLQPublisher.On("PublishToDLQ", mock.Anything, "test-key", []byte("invalid json"), mock.Anything).Return(nil)
			},
			expectedError: nil, // No error because message was successfully sent to DLQ
		},
		{
			name:  "unmarshal error with DLQ publish failure",
			key:   []byte("test-key"),
			value: []byte("invalid json"),
			setupMocks: func() {
				mockDLQPublisher.On("PublishToDLQ", mock.Anything, "test-key", []byte("invalid json"), mock.Anything).Return(errors.New("dlq error"))
			},
			expectedError: errors.New("failed to unmarshal"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockMatchService = &MockMatchService{}
			mockDLQPublisher = &MockDeadLetterPublisher{}
			mockDLQPublisher.On("Close").Return(nil).Maybe()

			handler = NewMatchEventHandler(logger, mockMatchService, mockDLQPublisher)

			tt.setupMocks()
			ctx := context.Background()

			err := handler.HandleMessage(ctx, tt.key, tt.value)

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}

			mockMatchService.AssertExpectations(t)
			mockDLQPublisher.AssertExpectations(t)
		})
	}
}
