package handler

import (
	"strconv"

	"github.com/Gucbir/gucbirnest/internal/production/service"
	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Create creates a production order from an explicit payload.
func (h *OrderHandler) Create(c *gin.Context) {
	var in service.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	in.UserID = GetUserID(c)

	order, err := h.svc.CreateOrder(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, order)
}

// ImportFromOrder seeds a production order from a sales order's main line.
func (h *OrderHandler) ImportFromOrder(c *gin.Context) {
	docNum, err := strconv.Atoi(c.Param("docNum"))
	if err != nil {
		BadRequest(c, "docNum must be an integer")
		return
	}

	order, err := h.svc.ImportFromOrderLine(c.Request.Context(), docNum, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, order)
}

func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	orders, total, err := h.svc.ListOrders(c.Request.Context(), c.Query("status"), pageSize, (page-1)*pageSize)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ListResponse{
		Items: orders,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// BackfillUnits creates the serials an order is still missing.
func (h *OrderHandler) BackfillUnits(c *gin.Context) {
	order, err := h.svc.BackfillUnits(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

// FirstRouteIssue books the first-stage materials out of stock in the ERP.
func (h *OrderHandler) FirstRouteIssue(c *gin.Context) {
	if err := h.svc.FirstRouteIssue(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"issued": true})
}
