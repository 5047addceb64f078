package domain

import (
	"time"

	"github.com/google/uuid"
)

// Inventory is the available stock of one book.
type Inventory struct {
	ID        uuid.UUID `json:"id"`
	BookID    uuid.UUID `json:"bookId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
