package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/cryptoforum/internal/analysis"
	"github.com/npezzotti/cryptoforum/internal/config"
	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/server"
	"github.com/npezzotti/cryptoforum/internal/stats"
	"github.com/npezzotti/cryptoforum/internal/testutil"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	res analysis.Result
	err error
}

func (a stubAnalyzer) Analyze(_ context.Context, _ analysis.Request) (analysis.Result, error) {
	return a.res, a.err
}

type testApp struct {
	*ForumApp
	forum *forum.Forum
	cs    *server.ChatServer
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Auth:   config.AuthConfig{SigningKey: []byte("test-signing-key"), TokenTTL: time.Hour},
	}
}

func newTestApp(t *testing.T, repo database.StateRepository, analyzer analysis.Analyzer) *testApp {
	t.Helper()

	if repo == nil {
		repo = database.NewMemoryRepository()
	}
	if analyzer == nil {
		analyzer = stubAnalyzer{res: analysis.Result{Position: analysis.PositionLong, Confidence: "60%"}}
	}

	logger := testutil.TestLogger(t)
	cs := server.NewChatServer(logger, stats.NoopStats{})
	f := forum.New(forum.Options{Repo: repo, Notifier: cs, Logger: logger, Moderators: []string{forum.AdminSender}})
	cs.SetForum(f)

	quota := analysis.NewQuota(repo, 1, logger)
	svc := analysis.NewService(analyzer, quota, nil, logger)

	app := NewForumApp(http.NewServeMux(), logger, f, cs, svc, repo, testConfig())
	return &testApp{ForumApp: app, forum: f, cs: cs}
}

// addUser registers username and returns a valid session cookie for it.
func (a *testApp) addUser(t *testing.T, username string) *http.Cookie {
	t.Helper()

	_, err := a.forum.Directory().CompleteOAuth(forum.OAuthProfile{Email: username + "@example.com"}, username)
	require.NoError(t, err)

	token, err := a.createJwtForSession(username, time.Hour)
	require.NoError(t, err)
	return createJwtCookie(token, time.Hour)
}

func (a *testApp) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	return rr
}

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()

	var e ApiError
	require.NoError(t, json.NewDecoder(strings.NewReader(rr.Body.String())).Decode(&e))
	return e
}

var errBoom = errors.New("boom")
