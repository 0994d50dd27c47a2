package operator

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/dispatch-api/internal/handler"
	"github.com/jwalitptl/dispatch-api/internal/middleware"
	"github.com/jwalitptl/dispatch-api/internal/model"
	apperrors "github.com/jwalitptl/dispatch-api/pkg/errors"
)

type ReportService interface {
	VisiblePending(ctx context.Context, hospitalID uuid.UUID) ([]*model.EmergencyReport, error)
	ListAll(ctx context.Context) ([]*model.EmergencyReport, error)
	Get(ctx context.Context, id uuid.UUID) (*model.EmergencyReport, error)
	Dispatch(ctx context.Context, hospitalID, reportID, ambulanceID uuid.UUID) (*model.EmergencyReport, error)
	MarkFalseAlarm(ctx context.Context, hospitalID, reportID uuid.UUID) (*model.EmergencyReport, error)
}

type FleetService interface {
	CreateAmbulance(ctx context.Context, hospitalID uuid.UUID, req model.AmbulanceRequest) (*model.Ambulance, error)
	UpdateAmbulance(ctx context.Context, hospitalID, id uuid.UUID, req model.AmbulanceRequest) (*model.Ambulance, error)
	DeleteAmbulance(ctx context.Context, hospitalID, id uuid.UUID) error
	ListAmbulances(ctx context.Context, hospitalID uuid.UUID) ([]*model.Ambulance, error)
	CreateDriver(ctx context.Context, hospitalID uuid.UUID, req model.DriverRequest) (*model.Driver, error)
	UpdateDriver(ctx context.Context, hospitalID, id uuid.UUID, req model.DriverRequest) (*model.Driver, error)
	DeleteDriver(ctx context.Context, hospitalID, id uuid.UUID) error
	ListDrivers(ctx context.Context, hospitalID uuid.UUID) ([]*model.Driver, error)
	AssignableAmbulances(ctx context.Context, hospitalID uuid.UUID, editingDriverID *uuid.UUID) ([]*model.Ambulance, error)
	Summary(ctx context.Context, hospitalID uuid.UUID) (*model.FleetSummary, error)
}

type Feed interface {
	Run(ctx context.Context, hospitalID uuid.UUID, every time.Duration, emit func(*model.OperatorSnapshot) error) error
}

type Handler struct {
	reports      ReportService
	fleet        FleetService
	feed         Feed
	feedInterval time.Duration
	auth         *middleware.AuthMiddleware
}

func NewHandler(reports ReportService, fleet FleetService, feed Feed, feedInterval time.Duration, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		reports:      reports,
		fleet:        fleet,
		feed:         feed,
		feedInterval: feedInterval,
		auth:         auth,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	op := r.Group("/operator", h.auth.Authenticate(), h.auth.RequireRole(model.RoleOperator))

	reports := op.Group("/reports")
	{
		reports.GET("/pending", h.ListPending)
		reports.GET("", h.ListReports)
		reports.GET("/:id", h.GetReport)
		reports.POST("/:id/dispatch", h.Dispatch)
		reports.POST("/:id/false-alarm", h.MarkFalseAlarm)
	}

	op.GET("/feed", h.Feed)

	ambulances := op.Group("/ambulances")
	{
		ambulances.GET("", h.ListAmbulances)
		ambulances.POST("", h.CreateAmbulance)
		ambulances.PUT("/:id", h.UpdateAmbulance)
		ambulances.DELETE("/:id", h.DeleteAmbulance)
	}

	drivers := op.Group("/drivers")
	{
		drivers.GET("", h.ListDrivers)
		drivers.POST("", h.CreateDriver)
		drivers.GET("/assignable-ambulances", h.AssignableAmbulances)
		drivers.PUT("/:id", h.UpdateDriver)
		drivers.DELETE("/:id", h.DeleteDriver)
	}

	op.GET("/fleet/summary", h.Summary)
}

func hospitalID(c *gin.Context) uuid.UUID {
	id, _ := middleware.HospitalID(c)
	return id
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.BadRequest("invalid id", err))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) ListPending(c *gin.Context) {
	list, err := h.reports.VisiblePending(c.Request.Context(), hospitalID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) ListReports(c *gin.Context) {
	list, err := h.reports.ListAll(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) GetReport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rep, err := h.reports.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rep))
}

func (h *Handler) Dispatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req model.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	rep, err := h.reports.Dispatch(c.Request.Context(), hospitalID(c), id, req.AmbulanceID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rep))
}

func (h *Handler) MarkFalseAlarm(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rep, err := h.reports.MarkFalseAlarm(c.Request.Context(), hospitalID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rep))
}

// Feed streams operator snapshots as server-sent events until the client
// goes away.
func (h *Handler) Feed(c *gin.Context) {
	ctx := c.Request.Context()
	snapshots := make(chan *model.OperatorSnapshot)
	done := make(chan error, 1)

	go func() {
		done <- h.feed.Run(ctx, hospitalID(c), h.feedInterval, func(s *model.OperatorSnapshot) error {
			select {
			case snapshots <- s:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(snapshots)
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		s, ok := <-snapshots
		if !ok {
			return false
		}
		c.SSEvent("snapshot", s)
		return true
	})

	if err := <-done; err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("request_id", c.GetString(middleware.ContextRequestID)).Msg("Operator feed ended")
	}
}

func (h *Handler) ListAmbulances(c *gin.Context) {
	list, err := h.fleet.ListAmbulances(c.Request.Context(), hospitalID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) CreateAmbulance(c *gin.Context) {
	var req model.AmbulanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	amb, err := h.fleet.CreateAmbulance(c.Request.Context(), hospitalID(c), req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(amb))
}

func (h *Handler) UpdateAmbulance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req model.AmbulanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	amb, err := h.fleet.UpdateAmbulance(c.Request.Context(), hospitalID(c), id, req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(amb))
}

func (h *Handler) DeleteAmbulance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.fleet.DeleteAmbulance(c.Request.Context(), hospitalID(c), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListDrivers(c *gin.Context) {
	list, err := h.fleet.ListDrivers(c.Request.Context(), hospitalID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) CreateDriver(c *gin.Context) {
	var req model.DriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	drv, err := h.fleet.CreateDriver(c.Request.Context(), hospitalID(c), req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(drv))
}

func (h *Handler) UpdateDriver(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req model.DriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	drv, err := h.fleet.UpdateDriver(c.Request.Context(), hospitalID(c), id, req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(drv))
}

func (h *Handler) DeleteDriver(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.fleet.DeleteDriver(c.Request.Context(), hospitalID(c), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AssignableAmbulances takes an optional driver_id query parameter naming the
// driver being edited.
func (h *Handler) AssignableAmbulances(c *gin.Context) {
	var editing *uuid.UUID
	if raw := c.Query("driver_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.Error(c, apperrors.BadRequest("invalid driver_id", err))
			return
		}
		editing = &id
	}

	list, err := h.fleet.AssignableAmbulances(c.Request.Context(), hospitalID(c), editing)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) Summary(c *gin.Context) {
	sum, err := h.fleet.Summary(c.Request.Context(), hospitalID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(sum))
}
