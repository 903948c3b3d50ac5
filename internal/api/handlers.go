package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/cryptoforum/internal/analysis"
	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/npezzotti/cryptoforum/internal/server"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type OAuthRequest struct {
	Profile  forum.OAuthProfile `json:"profile"`
	Username string             `json:"username"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type AnalysisRequest struct {
	CryptoName   string  `json:"cryptoName"`
	CurrentPrice float64 `json:"currentPrice"`
}

func (s *ForumApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *ForumApp) writeError(w http.ResponseWriter, r *http.Request, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		log := logging.FromContext(r.Context(), s.log)
		log.Error().Err(errResp).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ForumApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ForumApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	user, err := s.forum.Directory().Register(req.Email, req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, toApiError(err))
		return
	}

	if err := s.startSession(w, user.Username); err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, user.Public())
}

func (s *ForumApp) completeOAuth(w http.ResponseWriter, r *http.Request) {
	var req OAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	user, err := s.forum.Directory().CompleteOAuth(req.Profile, req.Username)
	if err != nil {
		s.writeError(w, r, toApiError(err))
		return
	}

	if err := s.startSession(w, user.Username); err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, user.Public())
}

func (s *ForumApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	user, err := s.forum.Directory().Authenticate(lr.Email, lr.Password)
	if err != nil {
		s.writeError(w, r, toApiError(err))
		return
	}

	if err := s.startSession(w, user.Username); err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, user.Public())
}

func (s *ForumApp) session(w http.ResponseWriter, r *http.Request) {
	username, _ := Username(r.Context())

	user, ok := s.forum.Directory().ByUsername(username)
	if !ok {
		s.writeError(w, r, NewNotFoundError())
		return
	}

	s.writeJson(w, http.StatusOK, user.Public())
}

func (s *ForumApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an expired one
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *ForumApp) listRooms(w http.ResponseWriter, r *http.Request) {
	username, _ := Username(r.Context())
	s.writeJson(w, http.StatusOK, s.forum.Rooms(username))
}

func (s *ForumApp) createRoom(w http.ResponseWriter, r *http.Request) {
	username, _ := Username(r.Context())

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	room, err := s.forum.CreateRoom(username, req.Name)
	if err != nil {
		s.writeError(w, r, toApiError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *ForumApp) getMessages(w http.ResponseWriter, r *http.Request) {
	items, err := s.forum.Messages(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, toApiError(err))
		return
	}

	s.writeJson(w, http.StatusOK, items)
}

func (s *ForumApp) analyze(w http.ResponseWriter, r *http.Request) {
	username, _ := Username(r.Context())

	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	res, err := s.analysis.Analyze(r.Context(), username, analysis.Request{
		CryptoName:   strings.TrimSpace(req.CryptoName),
		CurrentPrice: req.CurrentPrice,
	})
	if err != nil {
		errResp := toApiError(err)
		if errResp.StatusCode == http.StatusInternalServerError {
			// anything unmapped came from the analysis upstream
			errResp = NewBadGatewayError(err)
		}
		s.writeError(w, r, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *ForumApp) serveWs(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), s.log)
	username, _ := Username(r.Context())

	user, ok := s.forum.Directory().ByUsername(username)
	if !ok {
		s.writeError(w, r, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(user.Public(), conn, s.cs, s.log)
	s.cs.RegisterChan <- client

	go client.Write()
	go client.Read()
}
