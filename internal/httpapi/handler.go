package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"cloudlab/internal/core"
	"cloudlab/internal/telemetry"
	"cloudlab/pkg/domain"
)

// Handler exposes the simulation service over HTTP.
type Handler struct {
	svc     *core.Service
	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewHandler wires the service into HTTP handlers.
func NewHandler(svc *core.Service, log *telemetry.Logger, metrics *telemetry.Metrics) *Handler {
	if log == nil {
		log = telemetry.NewLogger(nil, "info", "")
	}
	return &Handler{svc: svc, log: log.NewComponentLogger("httpapi"), metrics: metrics}
}

func (h *Handler) HandleStart(c echo.Context) error {
	var req startRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	session, err := h.svc.StartLab(c.Request().Context(), domain.Scope{UserID: req.UserID, LabID: req.LabID})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) HandleReset(c echo.Context) error {
	var req startRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	session, err := h.svc.ResetLab(c.Request().Context(), domain.Scope{UserID: req.UserID, LabID: req.LabID})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// HandleValidate reports one console action. A failed verdict is still HTTP
// 200: the request itself succeeded, the step just is not satisfied. Typed
// domain errors map onto the taxonomy statuses instead.
func (h *Handler) HandleValidate(c echo.Context) error {
	var req validateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	verdict, err := h.svc.Validate(
		c.Request().Context(),
		domain.Scope{UserID: req.UserID, LabID: req.LabID},
		core.ValidationRequest{
			StepID:  req.StepID,
			Action:  core.ActionType(req.Action),
			Payload: domain.Payload(req.Payload),
		},
	)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, verdict)
}

func (h *Handler) HandleSubmit(c echo.Context) error {
	var req startRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sub, err := h.svc.SubmitLab(c.Request().Context(), domain.Scope{UserID: req.UserID, LabID: req.LabID})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) HandleListResources(c echo.Context) error {
	scope := domain.Scope{UserID: c.QueryParam("userId"), LabID: c.QueryParam("labId")}
	if scope.UserID == "" || scope.LabID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId and labId are required")
	}
	resources, err := h.svc.ListResources(c.Request().Context(), scope, c.QueryParam("type"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"resources": resources})
}

func (h *Handler) HandleListLabs(c echo.Context) error {
	labs := h.svc.Labs()
	out := make([]labSummary, 0, len(labs))
	for _, lab := range labs {
		out = append(out, labSummary{ID: lab.ID, Service: lab.Service, Title: lab.Title, Steps: len(lab.Steps)})
	}
	return c.JSON(http.StatusOK, map[string]any{"labs": out})
}

func (h *Handler) HandleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return c.Validate(req)
}

func (h *Handler) writeError(c echo.Context, err error) error {
	code := domain.CodeOf(err)
	status := statusForCode(code)
	if code == domain.CodePersistence {
		// CodeOf treats anything unclassified as a storage fault. Requests
		// rejected before touching storage (unknown action, missing payload
		// field) are the client's problem, not ours.
		var pe domain.PersistenceError
		if !errors.As(err, &pe) {
			status = http.StatusBadRequest
			code = "BAD_REQUEST"
		}
	}
	h.metrics.RecordError(string(code))
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	return c.JSON(status, errorResponse{Success: false, Code: string(code), Message: err.Error()})
}
