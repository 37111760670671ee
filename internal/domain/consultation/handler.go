package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinerva/clinerva/internal/platform/auth"
	"github.com/clinerva/clinerva/internal/platform/dosage"
	"github.com/clinerva/clinerva/internal/platform/signature"
	"github.com/clinerva/clinerva/pkg/pagination"
)

type Handler struct {
	svc    *Service
	dosage *dosage.Client
}

func NewHandler(svc *Service, dosageClient *dosage.Client) *Handler {
	return &Handler{svc: svc, dosage: dosageClient}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist, auth.RoleResident))
	read.GET("/consultations/:id", h.Get)
	read.GET("/consultations/:id/resolution", h.Resolution)
	read.GET("/patients/:patientID/consultations", h.ListByPatient)
	read.GET("/consultations/:id/documents/prescription", h.PrescriptionPDF)
	read.GET("/consultations/:id/documents/lab-order", h.LabOrderPDF)
	read.GET("/consultations/:id/documents/nursing-summary", h.NursingSummaryPDF)

	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleResident))
	clinical.PUT("/consultations/:id/sections/:section", h.UpdateSection)
	clinical.POST("/consultations/:id/omissions/:section", h.ConfirmOmission)
	clinical.DELETE("/consultations/:id/omissions/:section", h.RetractOmission)
	clinical.PUT("/consultations/:id/draft", h.SaveDraft)
	clinical.GET("/consultations/:id/draft", h.Draft)
	clinical.DELETE("/consultations/:id/draft", h.DiscardDraft)
	clinical.POST("/consultations/:id/finish", h.Finish)
	clinical.POST("/dosage/suggest", h.SuggestDosage)

	desk := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleAdmin))
	desk.POST("/consultations/:id/deliver", h.Deliver)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cons, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Resolution(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cons, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sections":   cons.Resolution(),
		"unresolved": cons.Unresolved(),
	})
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, p.Limit, p.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateSection(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var content json.RawMessage
	if err := c.Bind(&content); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	cons, err := h.svc.UpdateSection(c.Request().Context(), id, c.Param("section"), content, actorID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) ConfirmOmission(c echo.Context) error {
	return h.omission(c, h.svc.ConfirmOmission)
}

func (h *Handler) RetractOmission(c echo.Context) error {
	return h.omission(c, h.svc.RetractOmission)
}

type omissionOp func(ctx context.Context, id uuid.UUID, name string, actorID uuid.UUID) (*Consultation, error)

func (h *Handler) omission(c echo.Context, op omissionOp) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	cons, err := op(c.Request().Context(), id, c.Param("section"), actorID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) SaveDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload json.RawMessage
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.SaveDraft(c.Request().Context(), id, payload, actorID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Draft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	payload, err := h.svc.Draft(c.Request().Context(), id, actorID)
	if err != nil {
		return mapError(err)
	}
	return c.JSONBlob(http.StatusOK, payload)
}

func (h *Handler) DiscardDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.DiscardDraft(c.Request().Context(), id, actorID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Finish(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req FinishRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actorID := auth.UserIDFromContext(c.Request().Context())
	cons, err := h.svc.Finish(c.Request().Context(), id, actorID, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Deliver(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cons, err := h.svc.Deliver(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) PrescriptionPDF(c echo.Context) error {
	return h.pdf(c, h.svc.PrescriptionPDF, "prescription.pdf")
}

func (h *Handler) LabOrderPDF(c echo.Context) error {
	return h.pdf(c, h.svc.LabOrderPDF, "lab-order.pdf")
}

func (h *Handler) NursingSummaryPDF(c echo.Context) error {
	return h.pdf(c, h.svc.NursingSummaryPDF, "nursing-summary.pdf")
}

func (h *Handler) pdf(c echo.Context, render func(context.Context, uuid.UUID) ([]byte, error), name string) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	doc, err := render(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+name+`"`)
	return c.Blob(http.StatusOK, "application/pdf", doc)
}

func (h *Handler) SuggestDosage(c echo.Context) error {
	var req dosage.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Medicine == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "medicine is required")
	}
	return c.JSON(http.StatusOK, h.dosage.Suggest(c.Request().Context(), req))
}

func mapError(err error) error {
	var unresolved *UnresolvedError
	switch {
	case errors.Is(err, ErrConsultationNotFound), errors.Is(err, ErrDraftNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotInProgress), errors.Is(err, ErrNotFinished):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &unresolved):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message":    "sections must be filled or their omission confirmed",
			"unresolved": unresolved.Sections,
		})
	case errors.Is(err, signature.ErrWrongPassword):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownSection), errors.Is(err, ErrSectionNotEditable),
		errors.Is(err, ErrSectionEmpty), errors.Is(err, ErrNoSignatureMode):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
