// Package handler contains the HTTP handlers for /api/users.
//
// Handlers only speak HTTP: they decode JSON, call the service and pick a
// status code. Business rules live in the service package.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mipt-portal/userservice/internal/apperror"
	"github.com/mipt-portal/userservice/internal/model"
	"github.com/mipt-portal/userservice/internal/service"
)

// TokenCookieName is the cookie that carries the login token.
const TokenCookieName = "token"

// UserService is the subset of *service.UserService the handlers call.
type UserService interface {
	RegisterUser(ctx context.Context, p service.RegisterParams) (*model.User, error)
	LoginUser(ctx context.Context, email, password string) (*model.User, error)
	UpdateUser(ctx context.Context, upd model.UserUpdate) (*model.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	FindUserByID(ctx context.Context, id int64) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetAllUsers(ctx context.Context) []model.User
	UpdateUserRating(ctx context.Context, userID int64, rating float64) error
	AddCoins(ctx context.Context, userID int64, n int) error
	DeductCoins(ctx context.Context, userID int64, n int) error
	AddAnnouncementID(ctx context.Context, userID, adID int64) error
	DeleteAnnouncementID(ctx context.Context, userID, adID int64) error
}

// TokenIssuer signs a login token for a user id. *auth.TokenService
// satisfies it.
type TokenIssuer interface {
	Generate(userID int64) (string, error)
	TTL() time.Duration
}

// UserHandler serves the user account endpoints.
type UserHandler struct {
	users  UserService
	tokens TokenIssuer // nil disables the login cookie
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler. tokens may be nil.
func NewUserHandler(users UserService, tokens TokenIssuer, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, tokens: tokens, logger: logger}
}

// Routes registers the handlers on r. Mount it under /api/users:
//
//	POST   /register                    → HandleRegister
//	POST   /login                       → HandleLogin
//	GET    /                            → HandleList
//	GET    /lookup?email=               → HandleLookup
//	GET    /{id}                        → HandleGetByID
//	PUT    /{id}                        → HandleUpdate
//	DELETE /{id}                        → HandleDelete
//	PUT    /{id}/rating                 → HandleRating
//	POST   /{id}/coins/credit           → HandleCredit
//	POST   /{id}/coins/debit            → HandleDebit
//	POST   /{id}/announcements/{adId}   → HandleAddAnnouncement
//	DELETE /{id}/announcements/{adId}   → HandleDeleteAnnouncement
func (h *UserHandler) Routes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.Get("/", h.HandleList)
	r.Get("/lookup", h.HandleLookup)
	r.Get("/{id}", h.HandleGetByID)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	r.Put("/{id}/rating", h.HandleRating)
	r.Post("/{id}/coins/credit", h.HandleCredit)
	r.Post("/{id}/coins/debit", h.HandleDebit)
	r.Post("/{id}/announcements/{adId}", h.HandleAddAnnouncement)
	r.Delete("/{id}/announcements/{adId}", h.HandleDeleteAnnouncement)
}

// =========================================================================
// REQUEST BODIES
// =========================================================================

type registerRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Password      string `json:"password"`
	PasswordAgain string `json:"passwordAgain"`
	Address       string `json:"address"`
	StudyProgram  string `json:"studyProgram"`
	Course        int    `json:"course"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	StudyProgram string `json:"studyProgram"`
	Course       int    `json:"course"`
	NewPassword  string `json:"newPassword"`
}

type ratingRequest struct {
	Rating float64 `json:"rating"`
}

type amountRequest struct {
	Amount int `json:"amount"`
}

// =========================================================================
// ACCOUNT ROUTES: register, login, get one, list
// =========================================================================

// HandleRegister creates an account.
//
// HTTP: POST /api/users/register
// 201 with the redacted user; 400 on any failure.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid register JSON", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	user, err := h.users.RegisterUser(r.Context(), service.RegisterParams{
		Email:         req.Email,
		Name:          req.Name,
		Password:      req.Password,
		PasswordAgain: req.PasswordAgain,
		Address:       model.NewAddress(req.Address),
		StudyProgram:  req.StudyProgram,
		Course:        req.Course,
	})
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin checks credentials.
//
// HTTP: POST /api/users/login
// 200 with the redacted user; 401 on any failure. When a token issuer is
// configured the response also sets an HttpOnly "token" cookie.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid login JSON", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	user, err := h.users.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if h.tokens != nil {
		token, err := h.tokens.Generate(user.ID)
		if err != nil {
			h.logger.Error("failed to sign login token",
				slog.Int64("id", user.ID),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     TokenCookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(h.tokens.TTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleGetByID returns one user.
//
// HTTP: GET /api/users/{id}
// 200 with the redacted user; 404 when the id is unknown or malformed.
func (h *UserHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	user, err := h.users.FindUserByID(r.Context(), id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleList returns every user, redacted. It never fails.
//
// HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.users.GetAllUsers(r.Context()))
}

// =========================================================================
// PROFILE AND BALANCE ROUTES
// =========================================================================

// HandleLookup finds a user by email.
//
// HTTP: GET /api/users/lookup?email=ivanov.ii@phystech.edu
func (h *UserHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	user, err := h.users.FindUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate replaces the editable profile fields.
//
// HTTP: PUT /api/users/{id}
// REQUEST BODY: {"email","name","address","studyProgram","course","newPassword"}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid update JSON", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	user, err := h.users.UpdateUser(r.Context(), model.UserUpdate{
		ID:           id,
		Email:        req.Email,
		Name:         req.Name,
		Address:      model.NewAddress(req.Address),
		StudyProgram: req.StudyProgram,
		Course:       req.Course,
		NewPassword:  req.NewPassword,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleDelete removes a user.
//
// HTTP: DELETE /api/users/{id} → 204
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(ctx context.Context, id int64) error {
		return h.users.DeleteUser(ctx, id)
	})
}

// HandleRating sets the rating.
//
// HTTP: PUT /api/users/{id}/rating  {"rating": 4.5} → 204
func (h *UserHandler) HandleRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withID(w, r, func(ctx context.Context, id int64) error {
		return h.users.UpdateUserRating(ctx, id, req.Rating)
	})
}

// HandleCredit adds coins.
//
// HTTP: POST /api/users/{id}/coins/credit  {"amount": 50} → 204
func (h *UserHandler) HandleCredit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withID(w, r, func(ctx context.Context, id int64) error {
		return h.users.AddCoins(ctx, id, req.Amount)
	})
}

// HandleDebit deducts coins.
//
// HTTP: POST /api/users/{id}/coins/debit  {"amount": 30} → 204
func (h *UserHandler) HandleDebit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withID(w, r, func(ctx context.Context, id int64) error {
		return h.users.DeductCoins(ctx, id, req.Amount)
	})
}

// HandleAddAnnouncement links an announcement id to the user.
//
// HTTP: POST /api/users/{id}/announcements/{adId} → 204
func (h *UserHandler) HandleAddAnnouncement(w http.ResponseWriter, r *http.Request) {
	adID, ok := parseID(r.PathValue("adId"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.withID(w, r, func(ctx context.Context, id int64) error {
		return h.users.AddAnnouncementID(ctx, id, adID)
	})
}

// HandleDeleteAnnouncement unlinks an announcement id from the user.
//
// HTTP: DELETE /api/users/{id}/announcements/{adId} → 204
func (h *UserHandler) HandleDeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	adID, ok := parseID(r.PathValue("adId"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.withID(w, r, func(ctx context.Context, id int64) error {
		return h.users.DeleteAnnouncementID(ctx, id, adID)
	})
}

// =========================================================================
// HELPERS
// =========================================================================

// withID parses {id}, runs fn and answers 204 or the status for fn's error.
func (h *UserHandler) withID(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) error) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into dst and answers 400 on failure.
func (h *UserHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("invalid request JSON",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return false
	}
	return true
}

// parseID accepts positive decimal ids only.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
