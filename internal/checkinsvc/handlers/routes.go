package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {

		// public routes
		r.Get("/health", h.HealthHandler)
		r.Get("/occupancy", h.OccupancyHandler)
		r.Get("/tickets/{code}/status", h.TicketStatusHandler)
		r.Get("/tickets/{code}/ws", h.TicketSocketHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireRole(RoleAdmin))
				r.Post("/checkin/validate", h.ValidateHandler)
				r.Post("/checkin/approve", h.ApproveHandler)
				r.Post("/visits/{id}/checkout", h.AdminCheckoutHandler)
			})

			r.Route("/member", func(r chi.Router) {
				r.Use(h.requireRole(RoleMember))
				r.Post("/ticket", h.IssueTicketHandler)
				r.Get("/visit", h.ActiveVisitHandler)
				r.Post("/visits/{id}/checkout", h.MemberCheckoutHandler)
			})
		})
	})
}

type principal struct {
	Role     string
	MemberID int64
	Branch   string
}

type principalKey struct{}

func (h *Handler) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				h.CreateResponse(w, Response{Message: "unauthorized", Code: http.StatusUnauthorized, Error: "unauthorized"})
				return
			}

			p := principal{}
			p.Role, _ = claims["role"].(string)
			p.Branch, _ = claims["branch"].(string)
			p.MemberID, _ = int64Claim(claims["member_id"])

			if p.Role != role || (role == RoleMember && p.MemberID == 0) {
				h.CreateResponse(w, Response{Message: "insufficient role", Code: http.StatusForbidden, Error: "forbidden"})
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// int64Claim reads a numeric claim. JSON decoding yields float64, tokens
// minted in-process carry integers.
func int64Claim(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
