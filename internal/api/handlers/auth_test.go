package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dom/faq-chat-web/internal/api/middleware"
	"github.com/dom/faq-chat-web/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	jsonBody, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonBody))
	require.NoError(t, err)
	return resp
}

func TestAuthHandler_Register(t *testing.T) {
	ts := testutil.NewTestServer(t)

	tests := []struct {
		name           string
		request        map[string]string
		setup          func()
		expectedStatus int
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name: "successful registration",
			request: map[string]string{
				"firstName": "Jane",
				"lastName":  "Doe",
				"email":     "jane@example.com",
				"password":  "password123",
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result struct {
					Message string `json:"message"`
					User    struct {
						Email       string `json:"email"`
						Name        string `json:"name"`
						IsAnonymous bool   `json:"isAnonymous"`
					} `json:"user"`
				}
				testutil.AssertJSONResponse(t, resp, &result)
				assert.Equal(t, "User created successfully", result.Message)
				assert.Equal(t, "jane@example.com", result.User.Email)
				assert.Equal(t, "Jane", result.User.Name)
				assert.False(t, result.User.IsAnonymous)
			},
		},
		{
			name: "missing last name",
			request: map[string]string{
				"firstName": "Jane",
				"email":     "jane@example.com",
				"password":  "password123",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "short password",
			request: map[string]string{
				"firstName": "Jane",
				"lastName":  "Doe",
				"email":     "jane@example.com",
				"password":  "short",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "duplicate email",
			request: map[string]string{
				"firstName": "Jane",
				"lastName":  "Doe",
				"email":     "existing@example.com",
				"password":  "password123",
			},
			setup: func() {
				testutil.NewUserBuilder().
					WithEmail("existing@example.com").
					Build(t, ts.DB.DB)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "empty request body",
			request:        map[string]string{},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.DB.Truncate(t)

			if tt.setup != nil {
				tt.setup()
			}

			resp := postJSON(t, ts.APIURL("/auth/register"), tt.request)
			defer resp.Body.Close()

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)

			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, password := testutil.NewUserBuilder().
		WithEmail("login@example.com").
		WithPassword("correctpassword").
		Build(t, ts.DB.DB)

	tests := []struct {
		name           string
		request        map[string]string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "successful login",
			request:        map[string]string{"email": user.Email, "password": password},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong password",
			request:        map[string]string{"email": user.Email, "password": "wrongpassword"},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid credentials",
		},
		{
			name:           "unknown email",
			request:        map[string]string{"email": "nobody@example.com", "password": password},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid credentials",
		},
		{
			name:           "missing password",
			request:        map[string]string{"email": user.Email},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Email and password are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.APIURL("/auth/login"), tt.request)
			defer resp.Body.Close()

			if tt.expectedError != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedError)
				return
			}

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)

			var result testutil.AuthResponse
			testutil.AssertJSONResponse(t, resp, &result)
			assert.NotEmpty(t, result.Token)
			assert.Equal(t, user.ID.String(), result.User.ID)

			var cookie *http.Cookie
			for _, c := range resp.Cookies() {
				if c.Name == middleware.SessionCookieName {
					cookie = c
				}
			}
			require.NotNil(t, cookie, "login should set the session cookie")
			assert.Equal(t, result.Token, cookie.Value)
			assert.True(t, cookie.HttpOnly)
			assert.False(t, cookie.Secure)
			assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
			assert.Equal(t, 7*24*60*60, cookie.MaxAge)
		})
	}
}

func TestAuthHandler_Anonymous(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp, err := http.Post(ts.APIURL("/auth/anonymous"), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var result testutil.AuthResponse
	testutil.AssertJSONResponse(t, resp, &result)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.User.IsAnonymous)
	assert.Equal(t, "Anonymous", result.User.Name)
	assert.Contains(t, result.User.Email, "@anonymous.local")

	// The token works against protected routes
	req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, result.Token)
	meResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	testutil.AssertStatusCode(t, meResp, http.StatusOK)
}

func TestAuthHandler_AnonymousWithoutSecret(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.AuthSecret = ""
	ts := testutil.NewTestServerWithConfig(t, cfg)

	resp, err := http.Post(ts.APIURL("/auth/anonymous"), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusInternalServerError, "Server configuration error")
}

func TestAuthHandler_Token(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		cookie         *http.Cookie
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "valid session cookie",
			cookie:         &http.Cookie{Name: middleware.SessionCookieName, Value: token},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "secure cookie name",
			cookie:         &http.Cookie{Name: middleware.SecureSessionCookieName, Value: token},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "no cookie",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Session token not found",
		},
		{
			name:           "tampered cookie",
			cookie:         &http.Cookie{Name: middleware.SessionCookieName, Value: token + "x"},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.APIURL("/auth/token"), nil)
			require.NoError(t, err)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.expectedError != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedError)
				return
			}

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			var result testutil.AuthResponse
			testutil.AssertJSONResponse(t, resp, &result)
			assert.Equal(t, token, result.Token)
			assert.Equal(t, user.ID.String(), result.User.ID)
			assert.Equal(t, user.Email, result.User.Email)
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp, err := http.Post(ts.APIURL("/auth/logout"), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertStatusCode(t, resp, http.StatusOK)

	cleared := map[string]bool{}
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	assert.True(t, cleared[middleware.SessionCookieName])
	assert.True(t, cleared[middleware.SecureSessionCookieName])
}

func TestAuthHandler_Me(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, token := testutil.NewUserBuilder().
		WithEmail("me@example.com").
		BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		token          string
		expectedStatus int
	}{
		{name: "authenticated", token: token, expectedStatus: http.StatusOK},
		{name: "no token", token: "", expectedStatus: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, tt.token)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var result struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			}
			testutil.AssertJSONResponse(t, resp, &result)
			assert.Equal(t, user.ID.String(), result.ID)
			assert.Equal(t, "me@example.com", result.Email)
		})
	}
}
