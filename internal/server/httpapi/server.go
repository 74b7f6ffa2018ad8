// Package httpapi exposes the onboarding pipeline over HTTP.
package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/haulhq/driveronboard/internal/logging"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/steps"
)

type sessionSvc interface {
	Create(ctx context.Context, identity string, company models.CompanyContext) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Resume(ctx context.Context, token string) (*models.Session, error)
	IssueResumeToken(session *models.Session) (string, error)
	ChangeIdentity(ctx context.Context, session *models.Session, identity string) error
}

type onboardingSvc interface {
	HandleStep(ctx context.Context, sessionID string, step steps.Step, data []byte) (*models.Session, *models.Record, error)
	GetStep(ctx context.Context, sessionID string, step steps.Step) (*models.Record, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type uploadSvc interface {
	StagePutURL(ctx context.Context, mimeType string) (*models.FileAsset, error)
}

type Server struct {
	app        *fiber.App
	address    string
	sessions   sessionSvc
	onboarding onboardingSvc
	uploads    uploadSvc
	logger     logging.Logger
}

func NewServer(address string, sessions sessionSvc, onboarding onboardingSvc, uploads uploadSvc, logger logging.Logger) *Server {
	s := &Server{
		app:        fiber.New(fiber.Config{DisableStartupMessage: true}),
		address:    address,
		sessions:   sessions,
		onboarding: onboarding,
		uploads:    uploads,
		logger:     logger.With("module", "httpapi"),
	}
	s.register()
	return s
}

func (s *Server) register() {
	api := s.app.Group("/api/v1")

	api.Get("/health", s.health)

	api.Post("/sessions", s.createSession)
	api.Post("/sessions/resume", s.resumeSession)
	api.Get("/sessions/:id", s.getSession)
	api.Post("/sessions/:id/identity", s.changeIdentity)
	api.Get("/sessions/:id/steps/:step", s.getStep)
	api.Post("/sessions/:id/steps/:step", s.submitStep)

	api.Post("/uploads", s.createUpload)

	api.Delete("/admin/sessions/:id", s.deleteSession)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.address)
	}()

	s.logger.Info(ctx, "http server started", "address", s.address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info(ctx, "shutting down http server")
		return s.app.Shutdown()
	}
}
