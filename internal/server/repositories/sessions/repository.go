package sessions

import (
	"context"

	"github.com/haulhq/driveronboard/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByIdentityHash(ctx context.Context, hash string) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
}
