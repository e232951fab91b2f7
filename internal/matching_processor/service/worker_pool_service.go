package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/bank-reconciliation/internal/domain/shared"
)

// WorkerPoolMatchService implements the MatchService interface
type WorkerPoolMatchService struct {
	baseService MatchService
	pool        *ants.Pool
	logger      *slog.Logger
	// Use a mutex to protect access to the results map
	mu      sync.Mutex
	results map[string]chan error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolMatchService(
	baseService MatchService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolMatchService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolMatchService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		results:     make(map[string]chan error),
	}, nil
}

// ProcessMatchRequest submits a match request to the worker pool for processing.
func (s *WorkerPoolMatchService) ProcessMatchRequest(ctx context.Context, request *shared.MatchRequest) error {
	logger := s.logger
	if request.CorrelationID != "" {
		logger = s.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Submitting match request to worker pool",
		"transaction_id", request.TransactionID.String(),
		"company_id", request.CompanyID.String(),
	)

	// Create a channel to receive the result of the matching run
	resultChan := make(chan error, 1)

	transactionID := request.TransactionID.String()
	s.mu.Lock()
	s.results[transactionID] = resultChan
	s.mu.Unlock()

	// Create a copy of the request to avoid data races
	requestCopy := *request

	err := s.pool.Submit(func() {
		err := s.baseService.ProcessMatchRequest(ctx, &requestCopy)

		resultChan <- err

		s.mu.Lock()
		delete(s.results, transactionID)
		close(resultChan)
		s.mu.Unlock()
	})

	if err != nil {
		// If we couldn't submit the task to the pool, remove the result channel
		s.mu.Lock()
		delete(s.results, transactionID)
		close(resultChan)
		s.mu.Unlock()

		logger.Error("Failed to submit match request to worker pool",
			"transaction_id", request.TransactionID.String(),
			"error", err,
		)
		return err
	}

	// Wait for the result from the worker
	return <-resultChan
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolMatchService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolMatchService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolMatchService) Capacity() int {
	return s.pool.Cap()
}
