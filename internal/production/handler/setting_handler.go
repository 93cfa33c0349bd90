package handler

import (
	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/service"
	"github.com/gin-gonic/gin"
)

type SettingHandler struct {
	serials *service.SerialService
}

func NewSettingHandler(serials *service.SerialService) *SettingHandler {
	return &SettingHandler{serials: serials}
}

// GetSerialCounter returns the production serial counter document.
func (h *SettingHandler) GetSerialCounter(c *gin.Context) {
	counter, err := h.serials.GetCounter(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, counter)
}

// UpdateSerialCounter replaces the production serial counter document.
func (h *SettingHandler) UpdateSerialCounter(c *gin.Context) {
	var counter entity.SerialCounter
	if err := c.ShouldBindJSON(&counter); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.serials.UpdateCounter(c.Request.Context(), counter); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, counter)
}
