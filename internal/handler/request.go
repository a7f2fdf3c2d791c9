package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/fieldops/request-service/internal/artifact"
	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/engine"
	"github.com/fieldops/request-service/internal/query"
	"github.com/gin-gonic/gin"
)

// maxArtifactBytes caps a single uploaded artifact.
const maxArtifactBytes = 16 << 20

type RequestHandler struct {
	engine    *engine.Engine
	query     *query.Service
	artifacts *artifact.Store
}

func NewRequestHandler(eng *engine.Engine, qs *query.Service, artifacts *artifact.Store) *RequestHandler {
	return &RequestHandler{engine: eng, query: qs, artifacts: artifacts}
}

func requestID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "kind": "validation"})
		return 0, false
	}
	return id, true
}

type createRequestBody struct {
	SiteID       uint64  `json:"site_id" binding:"required"`
	SystemID     uint64  `json:"system_id" binding:"required"`
	SystemTypeID *uint64 `json:"system_type_id"`
	Scope        string  `json:"scope" binding:"required"`
	Code         string  `json:"code"`
	TypeID       uint64  `json:"type_id"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "kind": "validation"})
		return
	}
	r, msg, err := h.engine.Create(c.Request.Context(), auth.IdentityFrom(c), engine.CreateInput{
		SiteID:       body.SiteID,
		SystemID:     body.SystemID,
		SystemTypeID: body.SystemTypeID,
		Scope:        body.Scope,
		Code:         body.Code,
		TypeID:       body.TypeID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusCreated, msg, r)
}

func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	r, err := h.engine.GetByID(c.Request.Context(), auth.IdentityFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RequestHandler) List(c *gin.Context) {
	items, err := h.query.List(c.Request.Context(), auth.IdentityFrom(c), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": items, "total": len(items)})
}

type updateRequestBody struct {
	SiteID       uint64  `json:"site_id" binding:"required"`
	SystemID     uint64  `json:"system_id" binding:"required"`
	SystemTypeID *uint64 `json:"system_type_id"`
	Code         string  `json:"code" binding:"required"`
	TypeID       uint64  `json:"type_id" binding:"required"`
	Scope        string  `json:"scope" binding:"required"`
}

func (h *RequestHandler) Update(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	var body updateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "kind": "validation"})
		return
	}
	r, msg, err := h.engine.Update(c.Request.Context(), auth.IdentityFrom(c), id, engine.UpdateInput{
		SiteID:       body.SiteID,
		SystemID:     body.SystemID,
		SystemTypeID: body.SystemTypeID,
		Code:         body.Code,
		TypeID:       body.TypeID,
		Scope:        body.Scope,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusOK, msg, r)
}

type assignTechnicianBody struct {
	TechnicianID uint64 `json:"technician_id" binding:"required"`
}

func (h *RequestHandler) AssignTechnician(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	var body assignTechnicianBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "kind": "validation"})
		return
	}
	r, msg, err := h.engine.AssignTechnician(c.Request.Context(), auth.IdentityFrom(c), id, body.TechnicianID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusOK, msg, r)
}

type scheduleBody struct {
	Date *string `json:"date"`
	Time *string `json:"time"`
}

func (h *RequestHandler) Schedule(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	var body scheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "kind": "validation"})
		return
	}
	r, msg, err := h.engine.Schedule(c.Request.Context(), auth.IdentityFrom(c), id, engine.ScheduleInput{
		Date: body.Date,
		Time: body.Time,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusOK, msg, r)
}

func (h *RequestHandler) Acknowledge(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	r, msg, err := h.engine.Acknowledge(c.Request.Context(), auth.IdentityFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusOK, msg, r)
}

func (h *RequestHandler) Start(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	r, msg, err := h.engine.Start(c.Request.Context(), auth.IdentityFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusOK, msg, r)
}

func readUpload(fh *multipart.FileHeader) (*engine.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxArtifactBytes+1))
	if err != nil {
		return nil, err
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &engine.Upload{Name: fh.Filename, ContentType: contentType, Data: data}, nil
}

// Finish accepts multipart form files "ticket" (required) and "report".
func (h *RequestHandler) Finish(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	ticketFH, err := c.FormFile("ticket")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket file is required", "kind": "validation"})
		return
	}
	ticket, err := readUpload(ticketFH)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read ticket file", "kind": "validation"})
		return
	}
	if len(ticket.Data) > maxArtifactBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket file too large", "kind": "validation"})
		return
	}
	in := engine.FinishInput{Ticket: *ticket}
	if reportFH, err := c.FormFile("report"); err == nil {
		report, err := readUpload(reportFH)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read report file", "kind": "validation"})
			return
		}
		if len(report.Data) > maxArtifactBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "report file too large", "kind": "validation"})
			return
		}
		in.Report = report
	}
	r, msg, err := h.engine.Finish(c.Request.Context(), auth.IdentityFrom(c), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusOK, msg, r)
}

func (h *RequestHandler) Close(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	r, msg, err := h.engine.Close(c.Request.Context(), auth.IdentityFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeRequest(c, http.StatusOK, msg, r)
}

func (h *RequestHandler) Delete(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	msg, err := h.engine.Delete(c.Request.Context(), auth.IdentityFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DownloadArtifact streams a stored ticket or report payload. Visibility
// follows the same role scope as GetByID.
func (h *RequestHandler) DownloadArtifact(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	kind, err := artifact.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := h.engine.GetByID(c.Request.Context(), auth.IdentityFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	a, err := h.artifacts.Load(c.Request.Context(), id, kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+a.Name+`"`)
	c.Data(http.StatusOK, a.ContentType, a.Data)
}
