// Package controller exposes the judge core over HTTP. It adds no semantics:
// requests are parsed, handed to the in-process API, and results rendered.
package controller

import (
	"strconv"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/service"
	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// JudgeController handles submission and problem requests.
type JudgeController struct {
	engine *service.Engine
	loader *problem.Loader
}

// NewJudgeController creates a new controller.
func NewJudgeController(engine *service.Engine, loader *problem.Loader) *JudgeController {
	return &JudgeController{engine: engine, loader: loader}
}

// Register mounts all routes under the given group.
func (h *JudgeController) Register(api *gin.RouterGroup) {
	api.POST("/submissions", h.Submit)
	api.GET("/submissions/:sid", h.GetResult)
	api.GET("/problems", h.ListProblems)
	api.GET("/problems/:pid/statement", h.GetStatement)
	api.GET("/problems/:pid/files/:name", h.GetTestFile)
	api.DELETE("/results", h.ClearResults)
	api.POST("/reset", h.Reset)
}

type submitRequest struct {
	PID      string `json:"pid"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Submit accepts a submission and returns its id.
func (h *JudgeController) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid submission payload")
		return
	}
	sid, err := h.engine.Submit(c.Request.Context(), req.PID, req.Language, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"sid": sid})
}

// GetResult returns the verdict for one submission in its flat wire shape.
func (h *JudgeController) GetResult(c *gin.Context) {
	sid, err := strconv.ParseInt(c.Param("sid"), 10, 64)
	if err != nil || sid <= 0 {
		response.BadRequest(c, "invalid submission id")
		return
	}
	verdict, gerr := h.engine.GetResult(c.Request.Context(), sid)
	if gerr != nil {
		response.Error(c, gerr)
		return
	}
	response.Raw(c, verdict)
}

// ListProblems enumerates installed problems.
func (h *JudgeController) ListProblems(c *gin.Context) {
	withStatement := c.Query("statement") == "1"
	infos, err := h.loader.ListProblems(withStatement)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, infos)
}

// GetStatement returns the statement text of one problem.
func (h *JudgeController) GetStatement(c *gin.Context) {
	data, err := h.loader.ReadStatement(c.Param("pid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"statement": string(data)})
}

// GetTestFile returns one file from a problem's testdata directory.
func (h *JudgeController) GetTestFile(c *gin.Context) {
	data, err := h.loader.ReadTestFile(c.Param("pid"), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"content": string(data)})
}

// ClearResults wipes the in-memory verdict cache; archived results on disk
// stay readable.
func (h *JudgeController) ClearResults(c *gin.Context) {
	h.engine.ClearResults()
	response.Success(c, nil)
}

// Reset restarts the id sequence and purges archived submissions. Refused
// while submissions are still queued.
func (h *JudgeController) Reset(c *gin.Context) {
	if h.engine.QueueLen() > 0 {
		response.Error(c, appErr.New(appErr.ResetRefused))
		return
	}
	if err := h.engine.Reset(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
