package records

import (
	"context"

	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/steps"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Record, error)
	GetBySessionAndKind(ctx context.Context, sessionID string, kind steps.Step) (*models.Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.Record, error)
	Save(ctx context.Context, rec *models.Record) error
	DeleteBySession(ctx context.Context, sessionID string) error
}
