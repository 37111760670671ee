package admin

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinerva/clinerva/internal/platform/auth"
	"github.com/clinerva/clinerva/internal/platform/backup"
)

// SeedFunc loads demo data. Wired only outside production.
type SeedFunc func(c echo.Context) error

type Handler struct {
	svc  *Service
	seed SeedFunc
}

func NewHandler(svc *Service, seed SeedFunc) *Handler {
	return &Handler{svc: svc, seed: seed}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	g.POST("/backup", h.TakeBackup)
	g.GET("/backup/download", h.DownloadBackup)
	g.POST("/restore", h.Restore)
	g.GET("/report", h.Report)
	if h.seed != nil {
		g.POST("/seed", h.Seed)
	}
}

func (h *Handler) TakeBackup(c echo.Context) error {
	path, docs, err := h.svc.WriteBackup(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"path":      path,
		"documents": docs,
	})
}

func (h *Handler) DownloadBackup(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/octet-stream")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+backupFileName(h.svc.now())+`"`)
	c.Response().WriteHeader(http.StatusOK)
	return h.svc.StreamBackup(c.Request().Context(), c.Response())
}

func (h *Handler) Restore(c echo.Context) error {
	file, err := c.FormFile("archive")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "archive file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	stats, err := h.svc.Restore(c.Request().Context(), src)
	if err != nil {
		switch {
		case errors.Is(err, backup.ErrWrongApp),
			errors.Is(err, backup.ErrUnsupportedVersion),
			errors.Is(err, backup.ErrMissingMeta):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			// Partial restores report what committed before the failure.
			return echo.NewHTTPError(http.StatusInternalServerError, map[string]interface{}{
				"message":            err.Error(),
				"documents_restored": stats.Documents,
			})
		}
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Report(c echo.Context) error {
	book, err := h.svc.Report(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="clinic-report.xlsx"`)
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", book)
}

func (h *Handler) Seed(c echo.Context) error {
	if err := h.seed(c); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "seeded"})
}
