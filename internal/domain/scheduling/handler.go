package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lbecken/smiles/internal/platform/auth"
	"github.com/lbecken/smiles/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")

	// Staff reads
	g.GET("", h.ListByFacility, auth.RequireRole(auth.RoleDentist, auth.RoleReceptionist))
	g.GET("/dentist/:id", h.ListByDentist, auth.RequireRole(auth.RoleDentist, auth.RoleReceptionist))

	// Reads open to patients
	g.GET("/patient/:id", h.ListByPatient, auth.RequireRole(auth.RolePatient, auth.RoleDentist, auth.RoleReceptionist))
	g.GET("/:id", h.GetAppointment, auth.RequireRole(auth.RolePatient, auth.RoleDentist, auth.RoleReceptionist))

	// Writes
	g.POST("", h.CreateAppointment, auth.RequireRole(auth.RoleReceptionist))
	g.PUT("/:id", h.UpdateAppointment, auth.RequireRole(auth.RoleReceptionist))
	g.POST("/:id/cancel", h.CancelAppointment, auth.RequireRole(auth.RolePatient, auth.RoleReceptionist))
	g.DELETE("/:id", h.DeleteAppointment, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.CreateAppointment(ctx, auth.ActorFromContext(ctx), req)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.GetAppointment(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd AppointmentUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, err := h.svc.UpdateAppointment(ctx, auth.ActorFromContext(ctx), id, upd)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.CancelAppointment(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteAppointment(ctx, auth.ActorFromContext(ctx), id); err != nil {
		return h.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListByFacility serves GET /appointments?facility_id=&start_time=&end_time=.
// The window bounds are RFC 3339 and must be given together.
func (h *Handler) ListByFacility(c echo.Context) error {
	facilityID, err := uuid.Parse(c.QueryParam("facility_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid facility_id")
	}

	var window *Interval
	rawStart, rawEnd := c.QueryParam("start_time"), c.QueryParam("end_time")
	if rawStart != "" || rawEnd != "" {
		if rawStart == "" || rawEnd == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "start_time and end_time must be given together")
		}
		start, err := time.Parse(time.RFC3339, rawStart)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start_time")
		}
		end, err := time.Parse(time.RFC3339, rawEnd)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid end_time")
		}
		window = &Interval{Start: start, End: end}
	}

	ctx := c.Request().Context()
	items, err := h.svc.ListByFacility(ctx, auth.ActorFromContext(ctx), facilityID, window)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	items, err := h.svc.ListByPatient(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) ListByDentist(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	items, err := h.svc.ListByDentist(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

// httpError maps engine failures to HTTP status codes.
func (h *Handler) httpError(c echo.Context, err error) error {
	var se *Error
	if errors.As(err, &se) {
		switch se.Kind {
		case KindNotFound:
			return echo.NewHTTPError(http.StatusNotFound, se.Reason)
		case KindValidation:
			return echo.NewHTTPError(http.StatusBadRequest, se.Reason)
		case KindConflict:
			return echo.NewHTTPError(http.StatusConflict, se.Reason)
		}
	}
	if errors.Is(err, auth.ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	h.logger.Error().Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("appointment request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
