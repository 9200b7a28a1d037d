// Record HTTP handlers.
//
//   - PUT    /records/{id}     (put)
//   - GET    /records/{id}     (get)
//   - GET    /records?type=T   (list by type)
//   - DELETE /records/{id}     (remove)
//   - DELETE /records          (clear)
//   - GET    /stats            (counts per type)
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/store"
)

// PutRecordRequest is the JSON payload for PUT /records/{id}.
type PutRecordRequest struct {
	// Type is the logical category tag.
	Type string `json:"type" binding:"required" example:"mess_profile_cache"`
	// Payload is stored verbatim; omitted means null.
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
	// Timestamp in ms since the epoch; defaults to the server time.
	Timestamp *int64 `json:"timestamp,omitempty" example:"1739952000000"`
}

// ListRecordsResponse wraps the records of one type.
type ListRecordsResponse struct {
	Type    string                `json:"type"`
	Records []domain.StoredRecord `json:"records"`
	Count   int                   `json:"count"`
}

// StatsResponse reports the size of the record store.
type StatsResponse struct {
	Total  int64             `json:"total"`
	ByType []store.TypeCount `json:"by_type"`
}

// PutRecord godoc
// @ID          putRecord
// @Summary     Store a record
// @Description Upserts the record under id. Writing the same record twice is equivalent to writing it once.
// @Tags        Records
// @Accept      json
// @Produce     json
// @Param       id    path  string                    true "Record ID"  example(mess_profile_1)
// @Param       body  body  handlers.PutRecordRequest true "Record"
// @Success     200  {object} domain.StoredRecord
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /records/{id} [put]
func (h *Handlers) PutRecord(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req PutRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type required")
		return
	}
	rec := domain.StoredRecord{
		ID:        id,
		Type:      strings.TrimSpace(req.Type),
		Payload:   req.Payload,
		Timestamp: h.now().UnixMilli(),
	}
	if req.Timestamp != nil {
		rec.Timestamp = *req.Timestamp
	}
	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage("null")
	}
	if err := h.store.Put(c.Request.Context(), rec); err != nil {
		storageFail(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// GetRecord godoc
// @ID          getRecord
// @Summary     Read a record
// @Tags        Records
// @Produce     json
// @Param       id  path  string  true  "Record ID"
// @Success     200  {object} domain.StoredRecord
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /records/{id} [get]
func (h *Handlers) GetRecord(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		storageFail(c, err)
		return
	}
	if rec == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "record not found")
		return
	}
	ok(c, http.StatusOK, rec)
}

// ListRecords godoc
// @ID          listRecords
// @Summary     List records of a type
// @Description Returns every record tagged type, oldest first. Clients should order by timestamp.
// @Tags        Records
// @Produce     json
// @Param       type  query  string  true  "Type tag"  example(mess_profile_cache)
// @Success     200  {object} handlers.ListRecordsResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing type"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /records [get]
func (h *Handlers) ListRecords(c *gin.Context) {
	typ := strings.TrimSpace(c.Query("type"))
	if typ == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type query parameter required")
		return
	}
	recs, err := h.store.ListByType(c.Request.Context(), typ)
	if err != nil {
		storageFail(c, err)
		return
	}
	if recs == nil {
		recs = []domain.StoredRecord{}
	}
	ok(c, http.StatusOK, ListRecordsResponse{Type: typ, Records: recs, Count: len(recs)})
}

// DeleteRecord godoc
// @ID          deleteRecord
// @Summary     Remove a record
// @Description Removing a missing id succeeds.
// @Tags        Records
// @Param       id  path  string  true  "Record ID"
// @Success     204  {string} string "No Content"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /records/{id} [delete]
func (h *Handlers) DeleteRecord(c *gin.Context) {
	if err := h.store.Remove(c.Request.Context(), c.Param("id")); err != nil {
		storageFail(c, err)
		return
	}
	noContent(c)
}

// ClearRecords godoc
// @ID          clearRecords
// @Summary     Remove every record
// @Description Logout/reset. Queued actions are removed too.
// @Tags        Records
// @Success     204  {string} string "No Content"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /records [delete]
func (h *Handlers) ClearRecords(c *gin.Context) {
	if err := h.store.Clear(c.Request.Context()); err != nil {
		storageFail(c, err)
		return
	}
	noContent(c)
}

// Stats godoc
// @ID          recordStats
// @Summary     Record counts
// @Tags        Records
// @Produce     json
// @Success     200  {object} handlers.StatsResponse
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	total, err := h.store.Count(ctx)
	if err != nil {
		storageFail(c, err)
		return
	}
	byType, err := h.store.Stats(ctx)
	if err != nil {
		storageFail(c, err)
		return
	}
	if byType == nil {
		byType = []store.TypeCount{}
	}
	ok(c, http.StatusOK, StatsResponse{Total: total, ByType: byType})
}
