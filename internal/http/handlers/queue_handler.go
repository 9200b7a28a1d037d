// Action queue HTTP handlers.
//
//   - POST   /queue        (enqueue, Idempotency-Key aware)
//   - GET    /queue        (list, weak ETag)
//   - DELETE /queue/{id}   (remove after replay)
//
// Idempotency: when the client sends an Idempotency-Key that already produced
// an action for the same client and route, the earlier action is returned with
// 200 and `Idempotency-Replayed: true` instead of enqueueing a duplicate. The
// key is reserved before the action is queued, so a retry racing the first
// request gets 409 idempotency_in_flight rather than a second action.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/http/middleware"
)

// HeaderIdempotencyReplayed marks a response served from an earlier request.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// EnqueueActionRequest is the JSON payload for POST /queue.
type EnqueueActionRequest struct {
	// ActionType names the deferred mutation.
	ActionType string `json:"action_type" binding:"required" example:"create_checkin"`
	// Data is replayed verbatim.
	Data json.RawMessage `json:"data" swaggertype:"object"`
}

// ListActionsResponse wraps the queue, oldest first.
type ListActionsResponse struct {
	Actions []domain.QueuedAction `json:"actions"`
	Count   int                   `json:"count"`
}

// EnqueueAction godoc
// @ID          enqueueAction
// @Summary     Queue a deferred action
// @Description Records a mutation to replay once the network is back. Supports Idempotency-Key.
// @Tags        Queue
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       X-Client-ID      header  string  false "Client identity"
// @Param       body  body  handlers.EnqueueActionRequest  true  "Action"
// @Success     201  {object} domain.QueuedAction
// @Success     200  {object} domain.QueuedAction "Replayed"
// @Header      200  {string} Idempotency-Replayed "true"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Same key still in progress"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /queue [post]
func (h *Handlers) EnqueueAction(c *gin.Context) {
	ctx := c.Request.Context()
	var req EnqueueActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ActionType) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_type required")
		return
	}

	client := middleware.ClientFrom(c)
	scope := middleware.IdempotencyScope(c)
	key, hasKey := middleware.GetIdempotencyKey(c)
	useIdem := hasKey && h.idem != nil

	if useIdem && middleware.IsReplay(c) {
		h.replayKey(c, client, scope, key)
		return
	}
	if useIdem {
		reserved, err := h.idem.Reserve(ctx, client, scope, key)
		switch {
		case err != nil:
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency reserve failed")
			useIdem = false
		case !reserved:
			h.replayKey(c, client, scope, key)
			return
		}
	}

	a, err := h.store.EnqueueAction(ctx, strings.TrimSpace(req.ActionType), req.Data)
	if err != nil {
		if useIdem {
			if rerr := h.idem.Release(ctx, client, scope, key); rerr != nil {
				middleware.LoggerFrom(c).Warn().Err(rerr).Msg("idempotency release failed")
			}
		}
		storageFail(c, err)
		return
	}
	if useIdem {
		if err := h.idem.Complete(ctx, client, scope, key, a.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("action_id", a.ID).Msg("idempotency complete failed")
		}
	}
	ok(c, http.StatusCreated, a)
}

// replayKey answers a request whose key is already held. A key whose first
// request has not finished yields 409 so the client retries later.
func (h *Handlers) replayKey(c *gin.Context, client, scope, key string) {
	id, found, err := h.idem.Lookup(c.Request.Context(), client, scope, key, h.now().UTC())
	if err != nil {
		storageFail(c, err)
		return
	}
	if !found || id == "" {
		fail(c, http.StatusConflict, ErrCodeIdempotencyInFlight, "a request with this Idempotency-Key is still in progress")
		return
	}
	h.replayAction(c, id)
}

// replayAction answers with the action created earlier under the same key.
// If it was already replayed and removed, only its id is returned.
func (h *Handlers) replayAction(c *gin.Context, id string) {
	c.Header(HeaderIdempotencyReplayed, "true")
	rec, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		storageFail(c, err)
		return
	}
	if rec == nil {
		ok(c, http.StatusOK, domain.QueuedAction{ID: id})
		return
	}
	a, err := domain.AsQueuedAction(*rec)
	if err != nil {
		ok(c, http.StatusOK, domain.QueuedAction{ID: id})
		return
	}
	ok(c, http.StatusOK, a)
}

// ListActions godoc
// @ID          listActions
// @Summary     List queued actions
// @Description Returns the queue in replay order. Supports weak ETag via If-None-Match.
// @Tags        Queue
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object} handlers.ListActionsResponse
// @Header      200  {string} ETag "Weak ETag for current queue"
// @Success     304  {string} string "Not Modified"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /queue [get]
func (h *Handlers) ListActions(c *gin.Context) {
	actions, err := h.store.ListQueuedActions(c.Request.Context())
	if err != nil {
		storageFail(c, err)
		return
	}
	etag := queueETag(actions)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, ListActionsResponse{Actions: actions, Count: len(actions)})
}

// queueETag changes whenever an action is added or removed: the newest
// sequence grows on enqueue and the count drops on removal.
func queueETag(actions []domain.QueuedAction) string {
	var last int64
	var head string
	if n := len(actions); n > 0 {
		last = actions[n-1].Seq
		head = actions[0].ID
	}
	return fmt.Sprintf(`W/"queue:%d:%d:%s"`, len(actions), last, head)
}

// DeleteAction godoc
// @ID          deleteAction
// @Summary     Remove a queued action
// @Description Called after a successful replay. Unknown ids succeed.
// @Tags        Queue
// @Param       id  path  string  true  "Action ID"  example(action_1739952000000_k3j9x0a1b)
// @Success     204  {string} string "No Content"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /queue/{id} [delete]
func (h *Handlers) DeleteAction(c *gin.Context) {
	if err := h.store.RemoveQueuedAction(c.Request.Context(), c.Param("id")); err != nil {
		storageFail(c, err)
		return
	}
	noContent(c)
}
