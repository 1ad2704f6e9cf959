package handler

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"presence/internal/identity/models"
	"presence/internal/identity/service"
	"presence/internal/identity/store"
	"presence/internal/jwttoken"
	"presence/pkg/testutil"
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	tokens := jwttoken.NewService("test-signing-key", "presence", "presence-api")
	svc := service.New(store.NewInMemory(), tokens, time.Hour, logger)

	router := chi.NewRouter()
	New(svc, logger, tokens).Register(router)
	return router
}

func signupBody(email, badge string) map[string]string {
	return map[string]string{
		"email":      email,
		"password":   "correct-horse",
		"full_name":  "Test Principal",
		"badge_code": badge,
		"unit":       "engineering",
	}
}

func TestSignupAndLogin(t *testing.T) {
	router := newRouter(t)

	var token string

	testutil.Given(t, "a registered principal", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/signup", signupBody("alice@example.com", "B-100")))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		principal := testutil.UnmarshalResponse[models.Principal](t, rr)
		require.Equal(t, "alice@example.com", principal.Email)
		require.Equal(t, "member", string(principal.Role))
	})

	testutil.When(t, "they log in with valid credentials", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
			"email": "alice@example.com", "password": "correct-horse",
		}))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "token_type", "Bearer")

		resp := testutil.UnmarshalResponse[map[string]any](t, rr)
		var ok bool
		token, ok = (*resp)["access_token"].(string)
		require.True(t, ok)
		require.NotEmpty(t, token)
	})

	testutil.Then(t, "the token authenticates /auth/me", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/auth/me")
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "email", "alice@example.com")
	})
}

func TestLoginWrongPassword(t *testing.T) {
	router := newRouter(t)

	testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/signup", signupBody("bob@example.com", "B-200")))

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "bob@example.com", "password": "wrong",
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestSignupRejectsMalformedBody(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/auth/signup", "{oops"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestEnrollRequiresAuth(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/auth/enroll"))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestEnrollMarksPrincipal(t *testing.T) {
	router := newRouter(t)

	testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/signup", signupBody("carol@example.com", "B-300")))
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "carol@example.com", "password": "correct-horse",
	}))
	resp := testutil.UnmarshalResponse[map[string]any](t, rr)
	token := (*resp)["access_token"].(string)

	req := testutil.NewRequest(t, http.MethodPost, "/auth/enroll")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "enrolled", true)
}

func TestAdminPrincipalsRequiresAdministratorRole(t *testing.T) {
	router := newRouter(t)

	testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/signup", signupBody("dave@example.com", "B-400")))
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "dave@example.com", "password": "correct-horse",
	}))
	resp := testutil.UnmarshalResponse[map[string]any](t, rr)
	token := (*resp)["access_token"].(string)

	req := testutil.NewRequest(t, http.MethodGet, "/admin/principals/")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestAdminPrincipalsListsForAdministrator(t *testing.T) {
	router := newRouter(t)

	body := signupBody("olive@example.com", "B-001")
	body["role"] = "administrator"
	testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/signup", body))

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "olive@example.com", "password": "correct-horse",
	}))
	resp := testutil.UnmarshalResponse[map[string]any](t, rr)
	token := (*resp)["access_token"].(string)

	req := testutil.NewRequest(t, http.MethodGet, "/admin/principals/")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONHasKey(t, rr, "principals")
}
