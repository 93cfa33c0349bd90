package handler

import (
	"github.com/Gucbir/gucbirnest/internal/production/service"
	"github.com/gin-gonic/gin"
)

type ProcurementHandler struct {
	svc *service.ProcurementService
}

func NewProcurementHandler(svc *service.ProcurementService) *ProcurementHandler {
	return &ProcurementHandler{svc: svc}
}

// CreateFromRun generates the purchase request of a shortage run. Repeated
// calls return the existing request.
func (h *ProcurementHandler) CreateFromRun(c *gin.Context) {
	var in service.CreateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	in.UserID = GetUserID(c)

	result, err := h.svc.CreateRequestFromRun(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	if result.AlreadyExists {
		Success(c, result)
		return
	}
	Created(c, result)
}

func (h *ProcurementHandler) Get(c *gin.Context) {
	req, err := h.svc.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, req)
}

func (h *ProcurementHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	reqs, total, err := h.svc.ListRequests(c.Request.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ListResponse{
		Items: reqs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}
