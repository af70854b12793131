package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/apps/shared"
	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/user"
	emailsvc "github.com/trezcool/coursereview/services/email"
	logsvc "github.com/trezcool/coursereview/services/logger"
	"github.com/trezcool/coursereview/storage"
	memstore "github.com/trezcool/coursereview/storage/memory"
	testutil "github.com/trezcool/coursereview/tests"
)

const goodPwd = "Tr0ub4dor&3xyz"

type testEnv struct {
	srv     *Server
	app     *shared.App
	backend storage.Backend
	mail    *emailsvc.ConsoleServiceMock
}

// setup serves the sample document from memory. configure may adjust the config or replace the backend.
func setup(t *testing.T, configure ...func(conf *core.Config, deps *ServerDeps, backend *storage.Backend)) testEnv {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Server.AuthRateLimit = 0
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	var (
		backend storage.Backend = memstore.Open(testutil.SampleDocument())
		deps    ServerDeps
	)
	for _, fn := range configure {
		fn(conf, &deps, &backend)
	}

	mail := emailsvc.NewConsoleServiceMock(conf, logger)
	app, err := shared.NewApp(shared.Deps{Conf: conf, Logger: logger, Backend: backend, Mail: mail})
	require.NoError(t, err)

	deps.Conf = conf
	deps.Logger = logger
	deps.Catalog = app.Catalog
	deps.ReviewSvc = app.Reviews
	deps.UserSvc = app.Users
	deps.Validate = app.Validate
	deps.Translator = app.Translator
	deps.DisableReqLogs = true

	srv := NewServer(deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return testEnv{srv: srv, app: app, backend: backend, mail: mail}
}

// createUser adds a verified account with goodPwd.
func (env testEnv) createUser(t *testing.T, email, role string) user.User {
	t.Helper()
	usr, _, err := env.app.Users.CreateOrUpdate(context.Background(), user.AdminUser{
		Email: email, Display: "Test User", Password: goodPwd, Role: role,
	})
	require.NoError(t, err)
	return usr
}

func (env testEnv) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	resp, err := env.srv.tokens.pair(usr, 0)
	require.NoError(t, err)
	return resp.Token
}

func (env testEnv) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	env.srv.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env testEnv, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, env.do(method, tt.path, tt.token, tt.body))
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
