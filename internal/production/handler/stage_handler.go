package handler

import (
	"github.com/Gucbir/gucbirnest/internal/production/service"
	"github.com/gin-gonic/gin"
)

type StageHandler struct {
	svc *service.StageService
}

func NewStageHandler(svc *service.StageService) *StageHandler {
	return &StageHandler{svc: svc}
}

func (h *StageHandler) Start(c *gin.Context) {
	row, err := h.svc.StartUnit(c.Request.Context(), c.Param("operationId"), c.Param("unitId"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, row)
}

func (h *StageHandler) Pause(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	row, err := h.svc.PauseUnit(c.Request.Context(), c.Param("operationId"), c.Param("unitId"), body.Reason, body.Note, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, row)
}

func (h *StageHandler) Resume(c *gin.Context) {
	row, err := h.svc.ResumeUnit(c.Request.Context(), c.Param("operationId"), c.Param("unitId"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, row)
}

func (h *StageHandler) Finish(c *gin.Context) {
	row, err := h.svc.FinishUnit(c.Request.Context(), c.Param("operationId"), c.Param("unitId"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, row)
}

// Queue lists the units currently attached to a stage.
func (h *StageHandler) Queue(c *gin.Context) {
	var statuses []string
	if s := c.Query("status"); s != "" {
		statuses = []string{s}
	}
	rows, err := h.svc.ListStageQueue(c.Request.Context(), c.Param("stage"), statuses)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rows)
}

// UnitHistory reports a unit's route progress by serial number.
func (h *StageHandler) UnitHistory(c *gin.Context) {
	unit, stages, err := h.svc.UnitHistory(c.Request.Context(), c.Param("serialNo"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"unit": unit, "stages": stages})
}

// SelectAlternative records an alternative material pick for a unit.
func (h *StageHandler) SelectAlternative(c *gin.Context) {
	var body struct {
		OriginalItemCode string `json:"originalItemCode"`
		SelectedItemCode string `json:"selectedItemCode"`
		SelectedItemName string `json:"selectedItemName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	err := h.svc.SelectAlternative(c.Request.Context(),
		c.Param("operationId"), c.Param("unitId"),
		body.OriginalItemCode, body.SelectedItemCode, body.SelectedItemName,
		GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"selected": true})
}
