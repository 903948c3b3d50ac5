package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/cryptoforum/internal/analysis"
	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/server"
	"github.com/npezzotti/cryptoforum/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func forumProfile(email, picture string) forum.OAuthProfile {
	return forum.OAuthProfile{Email: email, Name: "Satoshi", Picture: picture}
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errBoom,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStateRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping", mock.Anything).Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo, nil)
			rr := app.do(t, http.MethodGet, "/healthz", nil, nil)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "OK", rr.Body.String())
			}
		})
	}
}

func TestRegisterHandler(t *testing.T) {
	app := newTestApp(t, nil, nil)
	app.addUser(t, "taken")

	tcases := []struct {
		name       string
		body       any
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "success",
			body:       RegisterRequest{Email: "new@example.com", Username: "newuser", Password: "hodl1234"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "username taken",
			body:       RegisterRequest{Email: "other@example.com", Username: "TAKEN", Password: "hodl1234"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Username is already taken",
		},
		{
			name:       "short password",
			body:       RegisterRequest{Email: "short@example.com", Username: "shorty", Password: "1"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Password must be at least 6 characters",
		},
		{
			name:       "malformed body",
			body:       "{",
			wantStatus: http.StatusBadRequest,
			wantMsg:    "bad request",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodPost, "/api/auth/register", tc.body, nil)
			require.Equal(t, tc.wantStatus, rr.Code)

			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, decodeApiError(t, rr).Message)
				assert.Nil(t, findCookie(rr, tokenCookieKey))
				return
			}

			var u types.User
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
			assert.Equal(t, "newuser", u.Username)
			assert.Empty(t, u.PasswordHash, "expected the hash to stay private")
			assert.NotNil(t, findCookie(rr, tokenCookieKey), "expected a session cookie")
		})
	}
}

func TestLoginHandler(t *testing.T) {
	app := newTestApp(t, nil, nil)
	_, err := app.forum.Directory().Register("carol@example.com", "carol", "satoshi")
	require.NoError(t, err)

	tcases := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"valid credentials", LoginRequest{Email: "carol@example.com", Password: "satoshi"}, http.StatusOK},
		{"wrong password", LoginRequest{Email: "carol@example.com", Password: "vitalik"}, http.StatusUnauthorized},
		{"unknown email", LoginRequest{Email: "nobody@example.com", Password: "satoshi"}, http.StatusUnauthorized},
		{"malformed body", "nope", http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodPost, "/api/auth/login", tc.body, nil)
			assert.Equal(t, tc.wantStatus, rr.Code)

			cookie := findCookie(rr, tokenCookieKey)
			if tc.wantStatus != http.StatusOK {
				assert.Nil(t, cookie)
				return
			}
			require.NotNil(t, cookie)
			assert.True(t, cookie.HttpOnly)

			username, err := app.extractUsernameFromToken(cookie.Value)
			require.NoError(t, err)
			assert.Equal(t, "carol", username)
		})
	}
}

func TestOAuthHandler(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rr := app.do(t, http.MethodPost, "/api/auth/oauth", OAuthRequest{
		Profile:  forumProfile("dave@example.com", "https://img.test/d.png"),
		Username: "dave",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var u types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
	assert.Equal(t, "dave", u.Username)
	assert.Equal(t, "https://img.test/d.png", u.ProfilePictureUrl)
	assert.NotNil(t, findCookie(rr, tokenCookieKey))

	rr = app.do(t, http.MethodPost, "/api/auth/oauth", OAuthRequest{Profile: forumProfile("eve@example.com", ""), Username: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionHandler(t *testing.T) {
	app := newTestApp(t, nil, nil)
	cookie := app.addUser(t, "alice")

	ghostToken, err := app.createJwtForSession("ghost", time.Hour)
	require.NoError(t, err)
	expiredToken, err := app.createJwtForSession("alice", -time.Minute)
	require.NoError(t, err)

	tcases := []struct {
		name       string
		cookie     *http.Cookie
		wantStatus int
	}{
		{"valid session", cookie, http.StatusOK},
		{"no cookie", nil, http.StatusUnauthorized},
		{"garbage token", &http.Cookie{Name: tokenCookieKey, Value: "not-a-jwt"}, http.StatusUnauthorized},
		{"expired token", &http.Cookie{Name: tokenCookieKey, Value: expiredToken}, http.StatusUnauthorized},
		{"unknown user", &http.Cookie{Name: tokenCookieKey, Value: ghostToken}, http.StatusUnauthorized},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodGet, "/api/auth/session", nil, tc.cookie)
			assert.Equal(t, tc.wantStatus, rr.Code)

			if tc.wantStatus == http.StatusOK {
				var u types.User
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
				assert.Equal(t, "alice", u.Username)
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t, nil, nil)
	cookie := app.addUser(t, "alice")

	rr := app.do(t, http.MethodGet, "/api/auth/logout", nil, cookie)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	cleared := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.Expires.Before(time.Now()), "expected the cookie to be expired")
}

func TestRoomsHandlers(t *testing.T) {
	app := newTestApp(t, nil, nil)
	cookie := app.addUser(t, "alice")

	rr := app.do(t, http.MethodPost, "/api/rooms", CreateRoomRequest{Name: "Moon Lambo"}, cookie)
	require.Equal(t, http.StatusCreated, rr.Code)
	var room types.Room
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
	assert.True(t, strings.HasPrefix(room.Id, "moon-lambo-"))

	rr = app.do(t, http.MethodPost, "/api/rooms", CreateRoomRequest{Name: "MOON LAMBO"}, cookie)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "A room with this name already exists", decodeApiError(t, rr).Message)

	rr = app.do(t, http.MethodPost, "/api/rooms", "{", cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(t, http.MethodGet, "/api/rooms", nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	var views []types.RoomView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
	require.Len(t, views, 7)
	var created *types.RoomView
	for i := range views {
		if views[i].Id == room.Id {
			created = &views[i]
		}
	}
	require.NotNil(t, created, "expected the new room in the list")
	assert.True(t, created.Joined)
	assert.True(t, created.Current)

	rr = app.do(t, http.MethodGet, "/api/rooms", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetMessagesHandler(t *testing.T) {
	app := newTestApp(t, nil, nil)
	cookie := app.addUser(t, "alice")
	require.NoError(t, app.forum.JoinRoom("alice", "bitcoin"))

	rr := app.do(t, http.MethodGet, "/api/rooms/bitcoin/messages", nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	var items []types.Item
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&items))
	require.Len(t, items, 2)
	assert.Equal(t, types.ItemKindChat, items[0].Kind)

	rr = app.do(t, http.MethodGet, "/api/rooms/nope/messages", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAnalysisHandler(t *testing.T) {
	t.Run("success then quota", func(t *testing.T) {
		app := newTestApp(t, nil, nil)
		cookie := app.addUser(t, "alice")

		rr := app.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{CryptoName: "Bitcoin", CurrentPrice: 64000}, cookie)
		require.Equal(t, http.StatusOK, rr.Code)
		var res analysis.Response
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, analysis.PositionLong, res.Position)
		assert.Zero(t, res.Remaining)

		rr = app.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{CryptoName: "Bitcoin", CurrentPrice: 64000}, cookie)
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})

	t.Run("invalid request", func(t *testing.T) {
		app := newTestApp(t, nil, nil)
		cookie := app.addUser(t, "alice")

		rr := app.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{CryptoName: "Bitcoin"}, cookie)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		app := newTestApp(t, nil, stubAnalyzer{err: errBoom})
		cookie := app.addUser(t, "alice")

		rr := app.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{CryptoName: "Bitcoin", CurrentPrice: 1}, cookie)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}

func TestServeWs(t *testing.T) {
	app := newTestApp(t, nil, nil)
	cookie := app.addUser(t, "alice")
	go app.cs.Run()

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err, "expected the upgrade to require a session")
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Add("Cookie", cookie.String())
	header.Set("Origin", "http://evil.test")
	_, _, err = websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err, "expected foreign origins to be rejected")

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "join": map[string]string{"room_id": "ethereum"}}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg server.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Response != nil && msg.Id == 1 {
			assert.Equal(t, http.StatusOK, msg.Response.ResponseCode)
			break
		}
	}
	assert.Equal(t, "ethereum", app.forum.CurrentRoom("alice"))
}
