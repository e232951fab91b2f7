package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit trail persistence
type Repository interface {
	// Create appends an audit record
	Create(ctx context.Context, record *Record) error

	// ListByTransaction retrieves a transaction's audit trail, newest first
	ListByTransaction(ctx context.Context, transactionID uuid.UUID, limit, offset int) ([]*Record, error)

	// CountByTransaction counts a transaction's audit records
	CountByTransaction(ctx context.Context, transactionID uuid.UUID) (int64, error)

	// ListByTimeRange retrieves a company's audit records within a time
	// window, newest first
	ListByTimeRange(ctx context.Context, companyID uuid.UUID, startTime, endTime time.Time, limit, offset int) ([]*Record, error)
}

// ErrRecordNotFound is returned when an audit record doesn't exist
type ErrRecordNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrRecordNotFound) Error() string {
	return fmt.Sprintf("no audit records for transaction %s", e.TransactionID)
}
