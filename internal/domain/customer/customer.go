package customer

import (
	"context"

	"github.com/google/uuid"
)

// Customer is the read-only lookup model used for counterparty-name scoring
type Customer struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	DisplayName string    `json:"display_name"`
}

// Repository defines the read-only customer store contract
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Customer, error)
}

// ErrCustomerNotFound indicates a missing customer
type ErrCustomerNotFound struct {
	CustomerID uuid.UUID
}

func (e ErrCustomerNotFound) Error() string {
	return "customer not found: " + e.CustomerID.String()
}
