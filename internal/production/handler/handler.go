package handler

import (
	"errors"
	"strconv"

	"github.com/Gucbir/gucbirnest/internal/production/service"
	"github.com/gin-gonic/gin"
)

// Handlers bundles all HTTP handlers.
type Handlers struct {
	Order       *OrderHandler
	Stage       *StageHandler
	Material    *MaterialHandler
	Procurement *ProcurementHandler
	Setting     *SettingHandler
}

func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Order:       NewOrderHandler(svc.Order),
		Stage:       NewStageHandler(svc.Stage),
		Material:    NewMaterialHandler(svc.Material),
		Procurement: NewProcurementHandler(svc.Procurement),
		Setting:     NewSettingHandler(svc.Serial),
	}
}

// Response is the envelope of every endpoint.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse wraps paginated results.
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func BadGateway(c *gin.Context, message string) {
	Error(c, 50200, message)
}

// RespondError maps domain errors onto HTTP responses. Invalid input is a
// 400, a wrong-state request a 409, the ERP being unreachable a 502 and a
// definitive empty ERP answer a 404.
func RespondError(c *gin.Context, err error) {
	var (
		vErr  *service.ValidationError
		sErr  *service.InvalidStateError
		cfg   *service.ConfigError
		unavl *service.ExternalUnavailableError
	)
	switch {
	case errors.As(err, &vErr):
		BadRequest(c, vErr.Error())
	case errors.As(err, &sErr):
		Conflict(c, sErr.Error())
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, "resource not found")
	case errors.Is(err, service.ErrExternalEmpty):
		NotFound(c, err.Error())
	case errors.As(err, &cfg):
		InternalError(c, cfg.Error())
	case errors.As(err, &unavl):
		BadGateway(c, unavl.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID reads the authenticated user id from the request context.
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination reads page/page_size query parameters.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
