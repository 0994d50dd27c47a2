package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/handler"
	"github.com/jwalitptl/dispatch-api/internal/middleware"
	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/service/analysis"
	reportsvc "github.com/jwalitptl/dispatch-api/internal/service/report"
	apperrors "github.com/jwalitptl/dispatch-api/pkg/errors"
)

const imageField = "image"

// Service is the reporting-user side of the report lifecycle.
type Service interface {
	Preview(ctx context.Context, img *analysis.Image) (analysis.Result, string)
	Intake(ctx context.Context, account *model.Account, req reportsvc.IntakeRequest) (*model.EmergencyReport, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*model.EmergencyReport, error)
}

type Handler struct {
	svc  Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reports := r.Group("/reports", h.auth.Authenticate(), h.auth.RequireRole(model.RoleUser))
	{
		reports.POST("/analyze", h.Analyze)
		reports.POST("", h.Create)
		reports.GET("/mine", h.ListMine)
	}
}

type previewResponse struct {
	Analysis    model.Analysis `json:"analysis"`
	Description string         `json:"description"`
	Degraded    bool           `json:"degraded"`
}

// Analyze runs the image analysis without creating a report.
func (h *Handler) Analyze(c *gin.Context) {
	img, err := readImage(c)
	if err != nil {
		handler.Error(c, err)
		return
	}

	result, description := h.svc.Preview(c.Request.Context(), img)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(previewResponse{
		Analysis:    result.Analysis,
		Description: description,
		Degraded:    result.Degraded,
	}))
}

// Create submits a report from a multipart form: image, and optionally
// latitude/longitude, address and description.
func (h *Handler) Create(c *gin.Context) {
	img, err := readImage(c)
	if err != nil {
		handler.Error(c, err)
		return
	}

	location, err := formLocation(c)
	if err != nil {
		handler.Error(c, err)
		return
	}

	rep, err := h.svc.Intake(c.Request.Context(), middleware.CurrentAccount(c), reportsvc.IntakeRequest{
		Location:    location,
		Address:     strings.TrimSpace(c.PostForm("address")),
		Description: strings.TrimSpace(c.PostForm("description")),
		Image:       img,
	})
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rep))
}

func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListForAccount(c.Request.Context(), middleware.CurrentAccount(c).ID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func readImage(c *gin.Context) (*analysis.Image, error) {
	fh, err := c.FormFile(imageField)
	if err != nil {
		return nil, reportsvc.ErrImageRequired
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.BadRequest("unreadable image", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.BadRequest("unreadable image", err)
	}
	if len(data) == 0 {
		return nil, reportsvc.ErrImageRequired
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, apperrors.BadRequest(fmt.Sprintf("unsupported image type %s", mime), nil)
	}

	return &analysis.Image{Data: data, MimeType: mime, FileName: fh.Filename}, nil
}

// formLocation reads client coordinates. Missing coordinates are not an
// error; the service falls back to the address or the default location.
func formLocation(c *gin.Context) (*model.Location, error) {
	latRaw, lngRaw := c.PostForm("latitude"), c.PostForm("longitude")
	if latRaw == "" && lngRaw == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, apperrors.BadRequest("latitude must be a number", err)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, apperrors.BadRequest("longitude must be a number", err)
	}
	return &model.Location{Latitude: lat, Longitude: lng}, nil
}
