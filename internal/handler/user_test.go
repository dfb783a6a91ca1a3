package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mipt-portal/userservice/internal/auth"
	"github.com/mipt-portal/userservice/internal/handler"
	"github.com/mipt-portal/userservice/internal/model"
	"github.com/mipt-portal/userservice/internal/repository/memory"
	"github.com/mipt-portal/userservice/internal/service"
)

const registerBody = `{"email":"ivanov.ii@phystech.edu","name":"Ivan","password":"Passw0rd!",` +
	`"passwordAgain":"Passw0rd!","address":"Dolgoprudny, Institutsky 9","studyProgram":"Physics","course":2}`

// newTestRouter wires a real service over an in-memory store behind a chi
// router mounted at /api/users, the same way the server does.
func newTestRouter(t *testing.T, tokens handler.TokenIssuer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := service.NewUserService(memory.NewUserStore(), auth.NewPasswordServiceForTest(4), auth.NewLegacySalt, logger)
	h := handler.NewUserHandler(svc, tokens, logger)

	r := chi.NewRouter()
	r.Route("/api/users", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeUser(t *testing.T, rr *httptest.ResponseRecorder) model.User {
	t.Helper()
	var u model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
	return u
}

func TestRegister(t *testing.T) {
	r := newTestRouter(t, nil)

	rr := do(t, r, http.MethodPost, "/api/users/register", registerBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	u := decodeUser(t, rr)
	assert.Equal(t, int64(1), u.ID)
	assert.Empty(t, u.HashPassword)
	assert.Empty(t, u.Salt)
	require.NotNil(t, u.Address)
	assert.Equal(t, "Dolgoprudny, Institutsky 9", u.Address.FullAddress)
	assert.Empty(t, u.Address.City)

	// duplicate email is still a 400 on this route, with no body
	rr = do(t, r, http.MethodPost, "/api/users/register", registerBody)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestRegister_BadInput(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"email":`},
		{"uppercase email", `{"email":"Ivanov@phystech.edu","name":"Ivan","password":"Passw0rd!","passwordAgain":"Passw0rd!"}`},
		{"weak password", `{"email":"ivanov@phystech.edu","name":"Ivan","password":"abcdefgh","passwordAgain":"abcdefgh"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPost, "/api/users/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, rr.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	rr := do(t, r, http.MethodPost, "/api/users/login", `{"email":"ivanov.ii@phystech.edu","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	u := decodeUser(t, rr)
	assert.Empty(t, u.HashPassword)
	assert.Empty(t, rr.Result().Cookies(), "no cookie without a token issuer")

	for _, body := range []string{
		`{"email":"ivanov.ii@phystech.edu","password":"wrong"}`,
		`{"email":"petrov@phystech.edu","password":"Passw0rd!"}`,
		`not json`,
	} {
		rr := do(t, r, http.MethodPost, "/api/users/login", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, body)
		assert.Empty(t, rr.Body.String())
	}
}

func TestLogin_SetsTokenCookie(t *testing.T) {
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Minute)
	require.NoError(t, err)
	r := newTestRouter(t, tokens)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	rr := do(t, r, http.MethodPost, "/api/users/login", `{"email":"ivanov.ii@phystech.edu","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var token *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == handler.TokenCookieName {
			token = c
		}
	}
	require.NotNil(t, token, "token cookie")
	assert.True(t, token.HttpOnly)
	assert.Equal(t, 60, token.MaxAge)

	id, err := tokens.Validate(token.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestGetByID(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	rr := do(t, r, http.MethodGet, "/api/users/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ivanov.ii@phystech.edu", decodeUser(t, rr).Email)

	for _, path := range []string{"/api/users/2", "/api/users/abc", "/api/users/-1", "/api/users/0"} {
		rr := do(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.Empty(t, rr.Body.String())
	}
}

func TestList(t *testing.T) {
	r := newTestRouter(t, nil)

	rr := do(t, r, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	rr = do(t, r, http.MethodGet, "/api/users/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var users []model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
	require.Len(t, users, 1)
	assert.Empty(t, users[0].Salt)
}

func TestLookup(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	rr := do(t, r, http.MethodGet, "/api/users/lookup?email=ivanov.ii@phystech.edu", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decodeUser(t, rr).ID)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/users/lookup?email=x@phystech.edu", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/users/lookup", "").Code)
}

func TestUpdate(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	rr := do(t, r, http.MethodPut, "/api/users/1",
		`{"email":"ivanov.ii@phystech.edu","name":"Vanya","address":"Moscow","course":3,"newPassword":"N3wPassw0rd!"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	u := decodeUser(t, rr)
	assert.Equal(t, "Vanya", u.Name)
	assert.Equal(t, 3, u.Course)
	assert.Empty(t, u.HashPassword)

	assert.Equal(t, http.StatusOK,
		do(t, r, http.MethodPost, "/api/users/login", `{"email":"ivanov.ii@phystech.edu","password":"N3wPassw0rd!"}`).Code)

	assert.Equal(t, http.StatusBadRequest,
		do(t, r, http.MethodPut, "/api/users/1", `{"email":"ivanov.ii@phystech.edu","name":"Va nya"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		do(t, r, http.MethodPut, "/api/users/9", `{"email":"ivanov.ii@phystech.edu","name":"Vanya"}`).Code)

	long := "Aa1!" + strings.Repeat("😀", 26)
	assert.Equal(t, http.StatusBadRequest,
		do(t, r, http.MethodPut, "/api/users/1",
			fmt.Sprintf(`{"email":"ivanov.ii@phystech.edu","name":"Vanya","newPassword":%q}`, long)).Code,
		"password over bcrypt's byte limit is a client error")
}

func TestUpdate_EmailConflict(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)
	other := `{"email":"petrov@phystech.edu","name":"Petr","password":"Passw0rd!","passwordAgain":"Passw0rd!"}`
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", other).Code)

	rr := do(t, r, http.MethodPut, "/api/users/2", `{"email":"ivanov.ii@phystech.edu","name":"Petr"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestCoinsAndRating(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/api/users/1/coins/credit", `{"amount":50}`).Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/api/users/1/coins/debit", `{"amount":30}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/users/1/coins/debit", `{"amount":100}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/users/1/coins/credit", `{"amount":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/users/1/coins/credit", `{"amount":9223372036854775807}`).Code,
		"credit that would overflow the balance")
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/users/1/coins/credit", `{`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPut, "/api/users/1/rating", `{"rating":4.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/api/users/1/rating", `{"rating":6}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPut, "/api/users/7/rating", `{"rating":3}`).Code)

	u := decodeUser(t, do(t, r, http.MethodGet, "/api/users/1", ""))
	assert.Equal(t, 20, u.Coins)
	assert.Equal(t, 4.5, u.Rating)
}

func TestAnnouncements(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/api/users/1/announcements/42", "").Code)
	}
	u := decodeUser(t, do(t, r, http.MethodGet, "/api/users/1", ""))
	assert.Equal(t, []int64{42}, u.AdList)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/users/1/announcements/42", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/api/users/1/announcements/42", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/api/users/1/announcements/x", "").Code)
}

func TestDelete(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/users/register", registerBody).Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/users/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/api/users/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/users/1", "").Code)

	// a new registration gets a fresh id
	rr := do(t, r, http.MethodPost, "/api/users/register", registerBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, int64(2), decodeUser(t, rr).ID)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, fmt.Sprintf("/api/users/%d", 1), "").Code)
}
