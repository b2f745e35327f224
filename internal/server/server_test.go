package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/devcontainer"
	"github.com/loykin/funcprov/internal/download"
	"github.com/loykin/funcprov/internal/provision"
	"github.com/loykin/funcprov/internal/store"
)

const siteID = "/subscriptions/x/resourceGroups/y/providers/Microsoft.Web/sites/myFunc"

func init() { gin.SetMode(gin.TestMode) }

type fakeRunner struct {
	got []provision.Request
	res *provision.Result
	err error
}

func (f *fakeRunner) Run(_ context.Context, req provision.Request) (*provision.Result, error) {
	f.got = append(f.got, req)
	return f.res, f.err
}

type fakeRuns struct {
	opts store.ListOptions
	runs []store.Run
}

func (f *fakeRuns) ListRuns(_ context.Context, opts store.ListOptions) ([]store.Run, error) {
	f.opts = opts
	return f.runs, nil
}

func quietLogger() *common.Logger {
	return common.NewLoggerTo(io.Discard, common.LogLevelError, common.FormatText)
}

func get(t *testing.T, h http.Handler, target, bearer string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return send(t, h, http.MethodGet, target, bearer, nil)
}

func post(t *testing.T, h http.Handler, target, bearer string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return send(t, h, http.MethodPost, target, bearer, nil)
}

func send(t *testing.T, h http.Handler, method, target, bearer string, header map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func provisionURL(container, folder string) string {
	q := url.Values{}
	q.Set("resourceId", siteID)
	if container != "" {
		q.Set("devContainer", container)
	}
	if folder != "" {
		q.Set("folder", folder)
	}
	return "/provision?" + q.Encode()
}

func TestHealthz(t *testing.T) {
	s := New(Options{Runner: &fakeRunner{}, Logger: quietLogger()})
	w, body := get(t, s.Handler(), "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestNew_DefaultAddrAvoidsFunctionsHostPort(t *testing.T) {
	s := New(Options{Runner: &fakeRunner{}, Logger: quietLogger()})
	assert.Equal(t, "127.0.0.1:7177", s.addr)
	assert.NotContains(t, s.addr, ":7071")

	s = New(Options{Runner: &fakeRunner{}, Logger: quietLogger(), Addr: "127.0.0.1:9000"})
	assert.Equal(t, "127.0.0.1:9000", s.addr)
}

func TestProvision_Success(t *testing.T) {
	r := &fakeRunner{res: &provision.Result{
		RunID:       "run-1",
		AppName:     "myFunc",
		ProjectPath: "/tmp/projects/myFunc",
		Files:       []string{"host.json"},
	}}
	s := New(Options{Runner: r, Logger: quietLogger()})

	w, body := post(t, s.Handler(), provisionURL("go", ""), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "/tmp/projects/myFunc", body["project_path"])
	assert.Equal(t, []interface{}{"host.json"}, body["files"])

	require.Len(t, r.got, 1)
	assert.Equal(t, "myFunc", r.got[0].Link.AppName())
	assert.Equal(t, "go", r.got[0].Link.Container)
	assert.Empty(t, r.got[0].Folder)
	assert.Empty(t, r.got[0].Token)
}

func TestProvision_FormBody(t *testing.T) {
	r := &fakeRunner{res: &provision.Result{RunID: "run-1"}}
	s := New(Options{Runner: r, Logger: quietLogger()})

	form := url.Values{"res": {siteID}, "container": {"node"}}
	req := httptest.NewRequest(http.MethodPost, "/provision", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, r.got, 1)
	assert.Equal(t, "node", r.got[0].Link.Container)
}

func TestProvision_FolderNeedsAuthenticatedCaller(t *testing.T) {
	r := &fakeRunner{res: &provision.Result{RunID: "r"}}
	s := New(Options{Runner: r, Logger: quietLogger()})
	w, body := post(t, s.Handler(), provisionURL("go", "/tmp/elsewhere"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "parse", body["step"])
	assert.Empty(t, r.got)

	cfg := VerifyConfig{Secret: []byte("s3cret")}
	s = New(Options{Runner: r, JWT: &cfg, Logger: quietLogger()})
	tok, err := IssueConfig{Secret: "s3cret"}.Issue(time.Now())
	require.NoError(t, err)
	w, _ = post(t, s.Handler(), provisionURL("go", "/tmp/projects"), tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, r.got, 1)
	assert.Equal(t, "/tmp/projects", r.got[0].Folder)
}

func TestProvision_RejectsBrowserRequests(t *testing.T) {
	r := &fakeRunner{res: &provision.Result{RunID: "r"}}
	s := New(Options{Runner: r, Runs: &fakeRuns{}, Logger: quietLogger()})

	w, _ := get(t, s.Handler(), provisionURL("go", ""), "")
	assert.NotEqual(t, http.StatusOK, w.Code)

	for _, h := range []map[string]string{
		{"Origin": "https://evil.example"},
		{"Origin": "null"},
		{"Sec-Fetch-Site": "cross-site"},
		{"Sec-Fetch-Site": "same-site"},
	} {
		w, _ = send(t, s.Handler(), http.MethodPost, provisionURL("go", ""), "", h)
		assert.Equal(t, http.StatusForbidden, w.Code, h)
		w, _ = send(t, s.Handler(), http.MethodGet, "/runs", "", h)
		assert.Equal(t, http.StatusForbidden, w.Code, h)
	}
	assert.Empty(t, r.got)

	w, _ = send(t, s.Handler(), http.MethodPost, provisionURL("go", ""), "", map[string]string{"Sec-Fetch-Site": "none"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProvision_MissingContainer(t *testing.T) {
	r := &fakeRunner{}
	s := New(Options{Runner: r, Logger: quietLogger()})
	w, body := post(t, s.Handler(), provisionURL("", ""), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "parse", body["step"])
	assert.Empty(t, r.got)
}

func TestProvision_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		step string
	}{
		{"template", &provision.StepError{Step: provision.StepCopyDevcontainer, Err: devcontainer.ErrTemplateNotFound}, http.StatusNotFound, "copy_devcontainer"},
		{"unauthorized", &provision.StepError{Step: provision.StepDownload, Err: &download.StatusError{StatusCode: 401, Status: "401 Unauthorized"}}, http.StatusBadGateway, "download"},
		{"token", &provision.StepError{Step: provision.StepAuth, Err: provision.ErrNoToken}, http.StatusBadGateway, "auth"},
		{"disk", &provision.StepError{Step: provision.StepFinalize, Err: errors.New("disk full")}, http.StatusInternalServerError, "finalize"},
		{"no folder", &provision.StepError{Step: provision.StepParse, Err: provision.ErrNoFolder}, http.StatusBadRequest, "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{Runner: &fakeRunner{err: tt.err}, Logger: quietLogger()})
			w, body := post(t, s.Handler(), provisionURL("go", ""), "")
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.step, body["step"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestProvision_JWT(t *testing.T) {
	cfg := VerifyConfig{Secret: []byte("s3cret"), AllowedIssuer: "funcprov", AllowedAudience: "listener"}
	r := &fakeRunner{res: &provision.Result{RunID: "r"}}
	runs := &fakeRuns{}
	s := New(Options{Runner: r, Runs: runs, JWT: &cfg, Logger: quietLogger()})
	now := time.Now()

	good, err := IssueConfig{Secret: "s3cret", Issuer: "funcprov", Audience: []string{"listener"}}.Issue(now)
	require.NoError(t, err)
	wrongAud, err := IssueConfig{Secret: "s3cret", Issuer: "funcprov", Audience: []string{"other"}}.Issue(now)
	require.NoError(t, err)
	wrongKey, err := IssueConfig{Secret: "nope", Issuer: "funcprov", Audience: []string{"listener"}}.Issue(now)
	require.NoError(t, err)
	expired, err := IssueConfig{Secret: "s3cret", Issuer: "funcprov", Audience: []string{"listener"}, TTL: time.Minute}.Issue(now.Add(-time.Hour))
	require.NoError(t, err)

	w, _ := post(t, s.Handler(), provisionURL("go", ""), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	for _, tok := range []string{wrongAud, wrongKey, expired} {
		w, _ = post(t, s.Handler(), provisionURL("go", ""), tok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	assert.Empty(t, r.got)

	w, _ = post(t, s.Handler(), provisionURL("go", ""), good)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = get(t, s.Handler(), "/runs", good)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays open
	w, _ = get(t, s.Handler(), "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTMiddleware_RejectsOtherAlgorithms(t *testing.T) {
	s := New(Options{Runner: &fakeRunner{}, JWT: &VerifyConfig{Secret: []byte("k")}, Logger: quietLogger()})
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	w, _ := post(t, s.Handler(), provisionURL("go", ""), none)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cfg := VerifyConfig{RequireJTI: true, ClockSkew: 30 * time.Second}
	assert.Error(t, validateClaims(jwt.MapClaims{}, cfg, now))
	assert.NoError(t, validateClaims(jwt.MapClaims{"jti": "1", "exp": float64(now.Unix() - 10)}, cfg, now))
	assert.Error(t, validateClaims(jwt.MapClaims{"jti": "1", "exp": float64(now.Unix() - 60)}, cfg, now))
	assert.Error(t, validateClaims(jwt.MapClaims{"jti": "1", "nbf": float64(now.Unix() + 60)}, cfg, now))
	assert.NoError(t, validateClaims(jwt.MapClaims{"jti": "1", "nbf": now.Format(time.RFC3339)}, cfg, now))

	aud := VerifyConfig{AllowedAudience: "a"}
	assert.NoError(t, validateClaims(jwt.MapClaims{"aud": []interface{}{"b", "a"}}, aud, now))
	assert.NoError(t, validateClaims(jwt.MapClaims{"aud": "a"}, aud, now))
	assert.Error(t, validateClaims(jwt.MapClaims{"aud": "b"}, aud, now))
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []store.Run{{RunID: "r1", AppName: "myFunc", Status: store.StatusFailed, Step: "download"}}}
	s := New(Options{Runner: &fakeRunner{}, Runs: runs, Logger: quietLogger()})

	w, body := get(t, s.Handler(), "/runs?app=myFunc&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.ListOptions{AppName: "myFunc", Limit: 5}, runs.opts)
	list, ok := body["runs"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "download", list[0].(map[string]interface{})["step"])

	w, _ = get(t, s.Handler(), "/runs?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0", Runner: &fakeRunner{}, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
