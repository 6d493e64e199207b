package domain

import (
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID        uuid.UUID
	OwnerID   *uuid.UUID
	Title     string
	CreatedAt time.Time
}
