// Reachability and edge status handlers.
//
//   - GET /status   current online flag and edge worker state
//   - PUT /status   record a connectivity event forwarded by a client
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResponse describes connectivity and the edge cache.
type StatusResponse struct {
	Online    bool      `json:"online"`
	Since     time.Time `json:"since"`
	EdgeState string    `json:"edge_state,omitempty" example:"activated"`
	CacheName string    `json:"cache_name,omitempty" example:"mess-app-v3"`
}

// SetStatusRequest is the JSON payload for PUT /status.
type SetStatusRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// GetStatus godoc
// @ID          getStatus
// @Summary     Connectivity status
// @Tags        Status
// @Produce     json
// @Success     200  {object} handlers.StatusResponse
// @Failure     404  {object} handlers.ErrorResponse "Reachability not configured"
// @Router      /status [get]
func (h *Handlers) GetStatus(c *gin.Context) {
	if h.reach == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reachability not configured")
		return
	}
	ok(c, http.StatusOK, h.status())
}

// SetStatus godoc
// @ID          setStatus
// @Summary     Report connectivity
// @Description Clients forward platform online/offline events here.
// @Tags        Status
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SetStatusRequest  true  "Observed state"
// @Success     200  {object} handlers.StatusResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /status [put]
func (h *Handlers) SetStatus(c *gin.Context) {
	if h.reach == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reachability not configured")
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "online (bool) required")
		return
	}
	h.reach.Set(*req.Online)
	ok(c, http.StatusOK, h.status())
}

func (h *Handlers) status() StatusResponse {
	s := StatusResponse{Online: h.reach.Online(), Since: h.reach.Since()}
	if h.edge != nil {
		s.EdgeState = h.edge.State().String()
		s.CacheName = h.edge.Generation()
	}
	return s
}
