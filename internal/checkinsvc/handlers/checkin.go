package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/service"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const approveTimeout = 10 * time.Second

type scanRequest struct {
	Code         string `json:"code"`
	LockerNumber *int   `json:"locker_number,omitempty"`
}

func (h *Handler) readScan(w http.ResponseWriter, r *http.Request) (scanRequest, bool) {
	var req scanRequest
	if err := decode(r, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Code) == "" {
		h.badRequest(w, "code is required")
		return req, false
	}
	if req.LockerNumber != nil && *req.LockerNumber <= 0 {
		h.badRequest(w, "locker_number must be positive")
		return req, false
	}
	return req, true
}

// ValidateHandler shows the operator who the scanned member is and whether
// they may enter. Nothing is written.
func (h *Handler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readScan(w, r)
	if !ok {
		return
	}

	v, err := h.visits.Validate(r.Context(), req.Code)
	if err != nil {
		h.failure(w, r, err)
		return
	}

	h.CreateResponse(w, Response{
		Message: v.Message,
		Code:    http.StatusOK,
		Data:    v,
		Error:   string(v.Reason),
	})
}

// ApproveHandler opens a visit at the operator's branch. Once started the
// approval completes even if the client goes away.
func (h *Handler) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readScan(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), approveTimeout)
	defer cancel()

	result, err := h.visits.Approve(ctx, service.ApproveRequest{
		Code:         req.Code,
		LockerNumber: req.LockerNumber,
		Branch:       principalFrom(r.Context()).Branch,
	})
	if err != nil {
		h.failure(w, r, err)
		return
	}

	code := http.StatusOK
	if result.Created {
		code = http.StatusCreated
	}
	h.CreateResponse(w, Response{
		Message: result.Message,
		Code:    code,
		Data:    result,
		Error:   string(result.Reason),
	})
}

func (h *Handler) AdminCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		h.badRequest(w, "invalid visit id")
		return
	}

	visit, err := h.visits.Checkout(r.Context(), id)
	if err != nil {
		h.failure(w, r, err)
		return
	}
	h.CreateResponse(w, Response{Message: "checked out", Code: http.StatusOK, Data: visit})
}

func (h *Handler) MemberCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		h.badRequest(w, "invalid visit id")
		return
	}

	visit, err := h.visits.CheckoutOwn(r.Context(), principalFrom(r.Context()).MemberID, id)
	if err != nil {
		h.failure(w, r, err)
		return
	}
	h.CreateResponse(w, Response{Message: "checked out", Code: http.StatusOK, Data: visit})
}

func (h *Handler) ActiveVisitHandler(w http.ResponseWriter, r *http.Request) {
	visit, err := h.visits.ActiveVisit(r.Context(), principalFrom(r.Context()).MemberID)
	if err != nil {
		h.failure(w, r, err)
		return
	}
	if visit == nil {
		h.CreateResponse(w, Response{Message: "no active visit", Code: http.StatusNotFound, Error: "not_found"})
		return
	}
	h.CreateResponse(w, Response{Message: "active visit", Code: http.StatusOK, Data: visit})
}

func (h *Handler) IssueTicketHandler(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.credentials.IssueTicket(r.Context(), principalFrom(r.Context()).MemberID)
	if err != nil {
		h.failure(w, r, err)
		return
	}
	h.CreateResponse(w, Response{Message: "ticket issued", Code: http.StatusOK, Data: ticket})
}

func (h *Handler) TicketStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.credentials.TicketStatus(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.failure(w, r, err)
		return
	}
	h.CreateResponse(w, Response{Message: status.State, Code: http.StatusOK, Data: status})
}

func (h *Handler) OccupancyHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.occupancy.CurrentCount(r.Context())
	if err != nil {
		h.failure(w, r, err)
		return
	}
	h.CreateResponse(w, Response{
		Message: "current occupancy",
		Code:    http.StatusOK,
		Data:    map[string]int{"count": count},
	})
}

// TicketSocketHandler streams status changes of one ticket to a member
// display. The current status is sent as soon as the socket opens.
func (h *Handler) TicketSocketHandler(w http.ResponseWriter, r *http.Request) {
	code := service.ExtractCode(chi.URLParam(r, "code"))
	status, err := h.credentials.TicketStatus(r.Context(), code)
	if err != nil {
		h.failure(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	h.hub.Register(socketId, code, conn)
	if err := h.hub.Send(socketId, status); err != nil {
		log.Warnf("initial ticket status to socket %s: %v", socketId, err)
	}

	go h.handleConnection(conn, socketId)
}

// handleConnection drains client frames until the socket closes. Displays
// only listen; anything they send is ignored.
func (h *Handler) handleConnection(conn *websocket.Conn, socketId string) {
	defer func() {
		h.hub.Unregister(socketId)
		conn.Close()
		log.Debugf("ticket socket %s closed", socketId)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("ticket socket %s: %v", socketId, err)
			}
			return
		}
	}
}
