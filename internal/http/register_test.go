package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func userBody(username, password string) map[string]any {
	return map[string]any{"user": map[string]any{"username": username, "password": password}}
}

func TestCreateUserEndpoint(t *testing.T) {
	tests := []struct {
		name              string
		allowRegistration bool
		withBootstrap     bool
		token             string
		body              map[string]any
		wantStatus        int
		wantRole          string
	}{
		{
			name:       "first user becomes admin",
			body:       userBody("register01", "register-password"),
			wantStatus: http.StatusOK,
			wantRole:   "ADMIN",
		},
		{
			name:          "registration closed for second user",
			withBootstrap: true,
			body:          userBody("register02", "register-password"),
			wantStatus:    http.StatusForbidden,
		},
		{
			name:          "host may create users while closed",
			withBootstrap: true,
			token:         demoToken,
			body: map[string]any{"user": map[string]any{
				"username": "register03", "password": "register-password", "role": "ADMIN",
			}},
			wantStatus: http.StatusOK,
			wantRole:   "ADMIN",
		},
		{
			name:              "open registration assigns USER",
			allowRegistration: true,
			withBootstrap:     true,
			body:              userBody("register04", "register-password"),
			wantStatus:        http.StatusOK,
			wantRole:          "USER",
		},
		{
			name:              "duplicate username",
			allowRegistration: true,
			withBootstrap:     true,
			body:              userBody("demo", "register-password"),
			wantStatus:        http.StatusConflict,
		},
		{
			name:              "invalid username",
			allowRegistration: true,
			body:              userBody("x", "register-password"),
			wantStatus:        http.StatusBadRequest,
		},
		{
			name:              "bad token",
			allowRegistration: true,
			token:             "not-a-token",
			body:              userBody("register05", "register-password"),
			wantStatus:        http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, tc.allowRegistration, tc.withBootstrap)
			resp := sendJSON(t, app, http.MethodPost, "/api/v1/users", tc.token, tc.body)
			expectStatus(t, resp, tc.wantStatus)
			if tc.wantRole == "" {
				return
			}
			created := decode[apiUser](t, resp)
			if created.Role != tc.wantRole {
				t.Fatalf("expected role %s, got %s", tc.wantRole, created.Role)
			}
			if created.Name == "" {
				t.Fatalf("expected resource name for created user")
			}
		})
	}
}

func TestSignInEndpointThenAuthMe(t *testing.T) {
	app := newTestApp(t, true, false)
	expectStatus(t, sendJSON(t, app, http.MethodPost, "/api/v1/users", "", userBody("signin01", "register-password")), http.StatusOK)

	wrong := sendJSON(t, app, http.MethodPost, "/api/v1/auth/signin", "", map[string]any{
		"passwordCredentials": map[string]any{"username": "signin01", "password": "nope"},
	})
	expectStatus(t, wrong, http.StatusBadRequest)

	resp := sendJSON(t, app, http.MethodPost, "/api/v1/auth/signin", "", map[string]any{
		"passwordCredentials": map[string]any{"username": "signin01", "password": "register-password"},
	})
	expectStatus(t, resp, http.StatusOK)
	signIn := decode[signInResponse](t, resp)
	if signIn.AccessToken == "" {
		t.Fatalf("expected non-empty accessToken")
	}
	if signIn.User.Username != "signin01" {
		t.Fatalf("expected username signin01, got %s", signIn.User.Username)
	}

	me := sendJSON(t, app, http.MethodGet, "/api/v1/auth/me", signIn.AccessToken, nil)
	expectStatus(t, me, http.StatusOK)
	if got := decode[getCurrentUserResponse](t, me); got.User.Username != "signin01" {
		t.Fatalf("auth/me returned %q", got.User.Username)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t, true, true)

	for _, header := range []string{"", "Basic abc", "Bearer wrong-token"} {
		req := newRequest(http.MethodGet, "/api/v1/saved-filters/table/requests-table", header)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, resp.StatusCode)
		}
	}
}

func newRequest(method, path, authorization string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}
