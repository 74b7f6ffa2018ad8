package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/history"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/steps"
)

// sessionView is the wire shape of a session. The identity material never
// leaves the server.
type sessionView struct {
	ID               string                `json:"id"`
	Company          models.CompanyContext `json:"company"`
	CurrentStep      steps.Step            `json:"current_step"`
	Completed        bool                  `json:"completed"`
	Terminated       bool                  `json:"terminated"`
	TerminatedReason string                `json:"terminated_reason,omitempty"`
	ResumeExpiresAt  time.Time             `json:"resume_expires_at"`
}

func viewOf(s *models.Session) sessionView {
	return sessionView{
		ID:               s.ID,
		Company:          s.Company,
		CurrentStep:      s.Progress.CurrentStep,
		Completed:        s.Progress.Completed,
		Terminated:       s.Terminated,
		TerminatedReason: s.TerminatedReason,
		ResumeExpiresAt:  s.ResumeExpiresAt,
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type createSessionRequest struct {
	Identity    string `json:"identity"`
	CarrierCode string `json:"carrier_code"`
	Terminal    string `json:"terminal"`
}

func (s *Server) createSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	if req.Identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "identity is required"})
	}
	if req.CarrierCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "carrier_code is required"})
	}

	session, err := s.sessions.Create(c.Context(), req.Identity,
		models.CompanyContext{CarrierCode: req.CarrierCode, Terminal: req.Terminal})
	if err != nil {
		return s.fail(c, err)
	}

	token, err := s.sessions.IssueResumeToken(session)
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session":      viewOf(session),
		"resume_token": token,
	})
}

type resumeRequest struct {
	ResumeToken string `json:"resume_token"`
}

func (s *Server) resumeSession(c *fiber.Ctx) error {
	var req resumeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	session, err := s.sessions.Resume(c.Context(), req.ResumeToken)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{"session": viewOf(session)})
}

func (s *Server) getSession(c *fiber.Ctx) error {
	session, err := s.sessions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{"session": viewOf(session)})
}

type changeIdentityRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) changeIdentity(c *fiber.Ctx) error {
	var req changeIdentityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	if req.Identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "identity is required"})
	}

	session, err := s.sessions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}

	if err := s.sessions.ChangeIdentity(c.Context(), session, req.Identity); err != nil {
		return s.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) getStep(c *fiber.Ctx) error {
	rec, err := s.onboarding.GetStep(c.Context(), c.Params("id"), steps.Step(c.Params("step")))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{"step": rec.Kind, "payload": rec.Payload, "updated_at": rec.UpdatedAt})
}

func (s *Server) submitStep(c *fiber.Ctx) error {
	session, rec, err := s.onboarding.HandleStep(c.Context(),
		c.Params("id"), steps.Step(c.Params("step")), c.Body())
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"session": viewOf(session),
		"record":  fiber.Map{"id": rec.ID, "step": rec.Kind},
	})
}

type createUploadRequest struct {
	MimeType string `json:"mime_type"`
}

func (s *Server) createUpload(c *fiber.Ctx) error {
	var req createUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	if req.MimeType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "mime_type is required"})
	}

	asset, err := s.uploads.StagePutURL(c.Context(), req.MimeType)
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": asset.Key, "url": asset.URL})
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	if err := s.onboarding.DeleteSession(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// fail maps a service error onto its HTTP status. Unknown errors are logged
// and surface as a bare 500; everything else carries its message.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		s.logger.Error(c.Context(), "request failed", "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	var vErr *common.ValidationError
	var gErr *common.GateError
	var fErr *common.StorageFinalizeError

	switch {
	case errors.As(err, &vErr) || isHistoryError(err):
		return fiber.StatusBadRequest
	case errors.As(err, &gErr), errors.Is(err, common.ErrSessionTerminated):
		return fiber.StatusForbidden
	case errors.Is(err, common.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, common.ErrSessionExpired):
		return fiber.StatusGone
	case errors.Is(err, common.ErrDuplicateIdentity), errors.Is(err, common.ErrVersionConflict):
		return fiber.StatusConflict
	case errors.As(err, &fErr):
		return fiber.StatusBadGateway
	case errors.Is(err, common.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func isHistoryError(err error) bool {
	var cntErr *history.CountError
	var entErr *history.EntryError
	var ovErr *history.OverlapError
	var gapErr *history.GapError
	var covErr *history.CoverageError
	return errors.As(err, &cntErr) || errors.As(err, &entErr) ||
		errors.As(err, &ovErr) || errors.As(err, &gapErr) || errors.As(err, &covErr)
}
