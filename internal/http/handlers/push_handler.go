// Push HTTP handlers.
//
//   - POST /push            deliver a push payload to the edge worker
//   - GET  /notifications   notifications shown so far
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mess-offline/internal/edge"
	"github.com/tbourn/go-mess-offline/internal/utils"
)

// ListNotificationsResponse wraps the newest notifications, oldest first.
type ListNotificationsResponse struct {
	Notifications []edge.Notification `json:"notifications"`
	Count         int                 `json:"count"`
}

// Push godoc
// @ID          deliverPush
// @Summary     Deliver a push message
// @Description The body is `{"title": "...", "body": "..."}`. Missing fields and malformed JSON fall back to defaults.
// @Tags        Push
// @Accept      json
// @Produce     json
// @Success     201  {object} edge.Notification
// @Failure     404  {object} handlers.ErrorResponse "Push not configured"
// @Failure     500  {object} handlers.ErrorResponse "Notifier failed"
// @Router      /push [post]
func (h *Handlers) Push(c *gin.Context) {
	if h.push == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "push not configured")
		return
	}
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	n, err := h.push.HandlePush(c.Request.Context(), payload)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodePushFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, n)
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     Shown notifications
// @Tags        Push
// @Produce     json
// @Param       limit  query  int  false  "Newest N"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListNotificationsResponse
// @Failure     404  {object} handlers.ErrorResponse "Notifications not configured"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	if h.notifs == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notifications not configured")
		return
	}
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 20), 1, 100)
	all := h.notifs.List()
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	if all == nil {
		all = []edge.Notification{}
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: all, Count: len(all)})
}
