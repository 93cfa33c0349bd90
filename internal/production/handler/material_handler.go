package handler

import (
	"github.com/Gucbir/gucbirnest/internal/production/service"
	"github.com/gin-gonic/gin"
)

type MaterialHandler struct {
	svc *service.MaterialService
}

func NewMaterialHandler(svc *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{svc: svc}
}

// Check computes shortages without persisting anything.
func (h *MaterialHandler) Check(c *gin.Context) {
	var in service.ShortageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.ComputeShortages(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// CreateRun computes shortages and persists the run for later procurement.
func (h *MaterialHandler) CreateRun(c *gin.Context) {
	var in service.ShortageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	run, err := h.svc.CreateShortageRun(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, run)
}

// SyncStocks refreshes the warehouse-stock cache from the ERP.
func (h *MaterialHandler) SyncStocks(c *gin.Context) {
	n, err := h.svc.SyncStocks(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"rows": n})
}

// GetStructure returns the BOM of an item, optionally bypassing the cache.
func (h *MaterialHandler) GetStructure(c *gin.Context) {
	refresh := c.Query("refresh") == "true"
	st, err := h.svc.GetStructure(c.Request.Context(), c.Param("itemCode"), refresh)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, st)
}
