// Package httpapp is the JSON transport for murmur. It decodes
// requests, hands them to the services and maps the error taxonomy to
// status codes; no business rule lives here.
package httpapp

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alphabot-ai/murmur/internal/auth"
	"github.com/alphabot-ai/murmur/internal/config"
	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/rate"
	"github.com/alphabot-ai/murmur/internal/service"
	"github.com/alphabot-ai/murmur/internal/store"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	posts   *service.Posts
	votes   *service.Votes
	users   *service.Users
	auth    *auth.Service
	limiter rate.Limiter
	cfg     config.Config
	logger  *zap.SugaredLogger
}

func NewServer(st store.Store, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config, logger *zap.SugaredLogger) *Server {
	return &Server{
		posts:   service.NewPosts(st),
		votes:   service.NewVotes(st),
		users:   service.NewUsers(st),
		auth:    authSvc,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)

	api.HandleFunc("/posts", s.handleCreatePost).Methods(http.MethodPost)
	api.HandleFunc("/posts", s.handleListPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts/search", s.handleSearchPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id:[0-9]+}", s.handleGetPost).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id:[0-9]+}", s.handleUpdatePost).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id:[0-9]+}", s.handleDeletePost).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id:[0-9]+}/upvote", s.handleUpvote).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id:[0-9]+}/downvote", s.handleDownvote).Methods(http.MethodPost)

	api.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}", s.handleGetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}", s.handleDeleteUser).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id:[0-9]+}/profile", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/profile", s.handleUpdateProfile).Methods(http.MethodPut)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	h := s.withIdentity(r)
	h = withLogging(s.logger, h)
	h = withRecover(s.logger, h)
	return h
}

// ----------------------------------------------------------------------------
// Auth

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := readJSON(r.Body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := s.users.Register(r.Context(), in)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	pair, err := s.auth.IssueTokens(r.Context(), user)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "tokens": pair})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, pair, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "tokens": pair})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefresh) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "tokens": pair})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	user, err := s.users.Get(r.Context(), caller)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ----------------------------------------------------------------------------
// Posts

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "post", s.cfg.RateLimits.PostPerMinute) {
		return
	}
	var req struct {
		Content  string `json:"content"`
		Category string `json:"category"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Anonymous creation is allowed: callerID stays nil without a
	// valid credential and the post is simply authorless.
	post, err := s.posts.Create(r.Context(), callerID(r), req.Content, req.Category)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	posts, err := s.posts.List(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": emptyIfNil(posts)})
}

func (s *Server) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": emptyIfNil(posts)})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.posts.Get(r.Context(), pathID(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	post, err := s.posts.Update(r.Context(), caller, pathID(r), req.Content)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	if err := s.posts.Delete(r.Context(), caller, pathID(r)); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpvote(w http.ResponseWriter, r *http.Request) {
	s.handleVote(w, r, service.Upvote)
}

func (s *Server) handleDownvote(w http.ResponseWriter, r *http.Request) {
	s.handleVote(w, r, service.Downvote)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request, value int) {
	if !s.allowRateLimit(w, r, "vote", s.cfg.RateLimits.VotePerMinute) {
		return
	}
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	postID := pathID(r)
	score, err := s.votes.Cast(r.Context(), caller, postID, value)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_id": postID, "score": score})
}

// ----------------------------------------------------------------------------
// Users

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireCaller(w, r); !ok {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	profiles, err := s.users.List(r.Context(), limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": profiles})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.handleGetProfile(w, r)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.users.Profile(r.Context(), pathID(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var in service.ProfileUpdate
	if err := readJSON(r.Body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile, err := s.users.UpdateProfile(r.Context(), caller, pathID(r), in)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	if err := s.users.Delete(r.Context(), caller, pathID(r)); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------------------------------------------------------------
// Helpers

// requireCaller rejects anonymous callers with 401.
func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if id := callerID(r); id != nil {
		return *id, true
	}
	writeError(w, http.StatusUnauthorized, errors.New("you must be logged in to do that"))
	return 0, false
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ok, retry := s.limiter.Allow(action, host, perMinute)
	if !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

// serviceError maps the service taxonomy onto status codes.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Errorw("unhandled error", "err", err)
		err = errors.New("internal server error")
	}
	writeError(w, status, err)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": int(retry.Seconds()),
	})
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}

func emptyIfNil(posts []model.Post) []model.Post {
	if posts == nil {
		return []model.Post{}
	}
	return posts
}
