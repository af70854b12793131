package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core"
	emailsvc "github.com/trezcool/coursereview/services/email"
)

const newPwd = "C0rrect-H0rse-Battery"

// lastToken returns the token of the last sent message rendered with template.
func lastToken(t *testing.T, mail *emailsvc.ConsoleServiceMock, template string) string {
	t.Helper()
	sent := mail.SentMessages()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].TemplateName != template {
			continue
		}
		data, ok := sent[i].TemplateData.(map[string]interface{})
		require.True(t, ok)
		token, ok := data["Token"].(string)
		require.True(t, ok)
		return token
	}
	t.Fatalf("no %q message sent", template)
	return ""
}

func Test_userApi_signupAndLogin(t *testing.T) {
	env := setup(t)
	email := "somsak@test.ac.th"
	creds := marshallObj(t, LoginRequest{Email: email, Password: goodPwd})

	rec := env.do(http.MethodPost, "/api/users/signup", "", marshallObj(t, map[string]string{
		"email": " SOMSAK@test.ac.th ", "display": "Somsak", "password": goodPwd, "password_confirm": goodPwd,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var usr UserResponse
	decode(t, rec, &usr)
	assert.Equal(t, email, usr.Email)
	assert.Equal(t, core.RoleStudent, usr.Role)
	assert.False(t, usr.IsVerified)
	assert.NotContains(t, rec.Body.String(), "password")

	runHTTPTests(t, env, []httpTest{
		{
			name:     "duplicate signup",
			method:   http.MethodPost,
			path:     "/api/users/signup",
			body:     marshallObj(t, map[string]string{"email": email, "display": "Somsak", "password": goodPwd, "password_confirm": goodPwd}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
		{
			name:     "login unverified",
			method:   http.MethodPost,
			path:     "/api/users/login",
			body:     creds,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "email address is not verified"}),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/api/users/login",
			body:     marshallObj(t, LoginRequest{Email: email, Password: "lol"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid email or password"}),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/api/users/login",
			body:     marshallObj(t, LoginRequest{Email: "nobody@test.ac.th", Password: goodPwd}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid email or password"}),
		},
		{
			name:     "missing password",
			method:   http.MethodPost,
			path:     "/api/users/login",
			body:     marshallObj(t, map[string]string{"email": email}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"password": "this field is required"}),
		},
	})

	// a resend replaces the first token
	first := lastToken(t, env.mail, "verify_email")
	rec = env.do(http.MethodPost, "/api/users/verify/resend", "", marshallObj(t, EmailRequest{Email: email}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshallObj(t, SuccessResponse{Success: msgCheckInbox})}, rec)
	second := lastToken(t, env.mail, "verify_email")
	require.NotEqual(t, first, second)

	runHTTPTests(t, env, []httpTest{
		{
			name:     "verify with replaced token",
			method:   http.MethodPost,
			path:     "/api/users/verify",
			body:     marshallObj(t, TokenRequest{Token: first}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"token": "invalid token"}),
		},
		{
			name:     "verify",
			method:   http.MethodPost,
			path:     "/api/users/verify",
			body:     marshallObj(t, TokenRequest{Token: second}),
			wantCode: http.StatusOK,
		},
		{
			name:     "verify twice",
			method:   http.MethodPost,
			path:     "/api/users/verify",
			body:     marshallObj(t, TokenRequest{Token: second}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"token": "invalid token"}),
		},
	})

	rec = env.do(http.MethodPost, "/api/users/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens TokenResponse
	decode(t, rec, &tokens)
	require.NotEmpty(t, tokens.Token)
	require.NotEmpty(t, tokens.RefreshToken)

	rec = env.do(http.MethodGet, "/api/users/me", tokens.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me struct {
		Principal core.Principal `json:"principal"`
		User      UserResponse   `json:"user"`
	}
	decode(t, rec, &me)
	assert.Equal(t, core.Principal{ID: email, Role: core.RoleStudent}, me.Principal)
	assert.True(t, me.User.IsVerified)
	assert.Equal(t, "Somsak", me.User.Display)
}

func Test_userApi_tokens(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "somsak@test.ac.th", core.RoleAdmin)
	pair, err := env.srv.tokens.pair(usr, 0)
	require.NoError(t, err)

	invalid := marshallObj(t, httpErr{Error: "invalid or expired jwt"})
	runHTTPTests(t, env, []httpTest{
		{name: "me without token", path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, httpErr{Error: "missing or malformed jwt"})},
		{name: "me with garbage", path: "/api/users/me", token: "lol", wantCode: http.StatusUnauthorized, wantData: invalid},
		{name: "me with refresh token", path: "/api/users/me", token: pair.RefreshToken, wantCode: http.StatusUnauthorized, wantData: invalid},
		{name: "refresh with access token", method: http.MethodPost, path: "/api/users/token-refresh", token: pair.Token, wantCode: http.StatusUnauthorized, wantData: invalid},
		{name: "refresh without token", method: http.MethodPost, path: "/api/users/token-refresh", wantCode: http.StatusUnauthorized},
	})

	t.Run("refresh", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/users/token-refresh", pair.RefreshToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp TokenResponse
		decode(t, rec, &resp)
		assert.Empty(t, resp.RefreshToken)

		claims, err := env.srv.tokens.parse(resp.Token)
		require.NoError(t, err)
		assert.False(t, claims.Refresh)
		assert.Equal(t, usr.Email, claims.Subject)
		assert.Equal(t, core.RoleAdmin, claims.Role)

		orig, err := env.srv.tokens.parse(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, orig.OrigIssuedAt, claims.OrigIssuedAt, "refreshed tokens descend from the same login")

		rec = env.do(http.MethodGet, "/api/admin/reviews/pending", resp.Token)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other := newTokenIssuer(&core.Config{SecretKey: "another-secret", AppName: env.app.Conf.AppName, Server: env.app.Conf.Server})
		forged, err := other.generate(other.claims(usr, false, 0))
		require.NoError(t, err)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: invalid}, env.do(http.MethodGet, "/api/users/me", forged))
	})

	t.Run("refresh for deleted account", func(t *testing.T) {
		ghost := usr
		ghost.Email = "ghost@test.ac.th"
		ghostPair, err := env.srv.tokens.pair(ghost, 0)
		require.NoError(t, err)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: invalid},
			env.do(http.MethodPost, "/api/users/token-refresh", ghostPair.RefreshToken))
	})

	t.Run("refresh for unverified account", func(t *testing.T) {
		somchai, err := env.app.Users.GetByEmail(t.Context(), "somchai@test.ac.th")
		require.NoError(t, err)
		p, err := env.srv.tokens.pair(somchai, 0)
		require.NoError(t, err)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "email address is not verified"})},
			env.do(http.MethodPost, "/api/users/token-refresh", p.RefreshToken))
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)
	email := "somchai@test.ac.th" // unverified sample account

	rec := env.do(http.MethodPost, "/api/users/password-reset", "", marshallObj(t, EmailRequest{Email: "nobody@test.ac.th"}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshallObj(t, SuccessResponse{Success: msgCheckInbox})}, rec)
	assert.Empty(t, env.mail.SentMessages(), "unknown emails get no message")

	rec = env.do(http.MethodPost, "/api/users/password-reset", "", marshallObj(t, EmailRequest{Email: email}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshallObj(t, SuccessResponse{Success: msgCheckInbox})}, rec)
	token := lastToken(t, env.mail, "password_reset")

	confirm := func(tok, pwd, pwdConfirm string) []byte {
		return marshallObj(t, map[string]string{"token": tok, "password": pwd, "password_confirm": pwdConfirm})
	}
	runHTTPTests(t, env, []httpTest{
		{
			name:     "bad request",
			method:   http.MethodPost,
			path:     "/api/users/password-reset/confirm",
			body:     []byte(`{"token": 1}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown token",
			method:   http.MethodPost,
			path:     "/api/users/password-reset/confirm",
			body:     confirm("lol", newPwd, newPwd),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"token": "invalid token"}),
		},
		{
			name:     "passwords mismatch",
			method:   http.MethodPost,
			path:     "/api/users/password-reset/confirm",
			body:     confirm(token, newPwd, goodPwd),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "weak password",
			method:   http.MethodPost,
			path:     "/api/users/password-reset/confirm",
			body:     confirm(token, "password", "password"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "reset",
			method:   http.MethodPost,
			path:     "/api/users/password-reset/confirm",
			body:     confirm(token, newPwd, newPwd),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, SuccessResponse{Success: msgPasswordReset}),
		},
		{
			name:     "token is single use",
			method:   http.MethodPost,
			path:     "/api/users/password-reset/confirm",
			body:     confirm(token, newPwd, newPwd),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"token": "invalid token"}),
		},
	})

	// the reset proves ownership of the email, so the account may now log in
	rec = env.do(http.MethodPost, "/api/users/login", "", marshallObj(t, LoginRequest{Email: email, Password: newPwd}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
