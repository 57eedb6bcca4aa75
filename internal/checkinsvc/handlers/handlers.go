package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/avvvet/gym-services/internal/checkinsvc/service"
	"github.com/avvvet/gym-services/internal/checkinsvc/ws"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	visits      *service.VisitService
	credentials *service.CredentialService
	occupancy   *service.Occupancy
	hub         *ws.Hub
	tokenAuth   *jwtauth.JWTAuth
	upgrader    websocket.Upgrader
	port        string
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func NewHandler(visits *service.VisitService, credentials *service.CredentialService,
	occupancy *service.Occupancy, hub *ws.Hub, jwtSecret, port string) *Handler {
	return &Handler{
		visits:      visits,
		credentials: credentials,
		occupancy:   occupancy,
		hub:         hub,
		tokenAuth:   jwtauth.New("HS256", []byte(jwtSecret), nil),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		port: port,
	}
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "checkin service is running at port " + h.port,
		Code:    http.StatusOK,
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.CreateResponse(w, Response{
		Message: msg,
		Code:    http.StatusBadRequest,
		Error:   "bad_request",
	})
}

// failure maps a service error onto a response. Anything that is not a
// domain error is an infrastructure failure and is only logged in full.
func (h *Handler) failure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrMemberNotFound):
		h.CreateResponse(w, Response{Message: err.Error(), Code: http.StatusNotFound, Error: "not_found"})
	case errors.Is(err, service.ErrVisitNotFound):
		h.CreateResponse(w, Response{Message: err.Error(), Code: http.StatusNotFound, Error: "not_found"})
	case errors.Is(err, service.ErrForbidden):
		h.CreateResponse(w, Response{Message: err.Error(), Code: http.StatusForbidden, Error: "forbidden"})
	default:
		log.WithField("path", r.URL.Path).Errorf("request failed: %v", err)
		h.CreateResponse(w, Response{
			Message: "service unavailable",
			Code:    http.StatusServiceUnavailable,
			Error:   "unavailable",
		})
	}
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func visitID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
