// Package apitest provides an in-memory onCare backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/on-cure/oncare/internal/api"
)

// LoginShape selects how the login endpoint encodes the user.
type LoginShape int

const (
	LoginDirect LoginShape = iota
	LoginNested
	LoginMalformed
)

type account struct {
	password string
	user     api.User
}

// Server is a fake backend implementing the auth, notification, user, post
// and websocket endpoints the client uses.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	accounts      map[string]*account
	sessions      map[string]int
	notifications map[int][]api.Notification
	follows       map[int]map[int]bool
	conns         map[int][]*websocket.Conn
	posts         []api.Post
	nextUserID    int
	nextNotifID   int
	nextPostID    int

	loginShape   LoginShape
	sessionDelay time.Duration
	logoutStatus  int
	postsEnvelope bool
	requests      []string

	upgrader websocket.Upgrader
	writeMu  sync.Mutex
}

// NewServer starts a fake backend. Callers stop it with Close.
func NewServer() *Server {
	s := &Server{
		accounts:      make(map[string]*account),
		sessions:      make(map[string]int),
		notifications: make(map[int][]api.Notification),
		follows:       make(map[int]map[int]bool),
		conns:         make(map[int][]*websocket.Conn),
		nextUserID:    1,
		nextNotifID:   1,
		nextPostID:    1,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/auth/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", s.logout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/session", s.session).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications", s.authed(s.listNotifications)).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/read", s.authed(s.markRead)).Methods(http.MethodPut)
	r.HandleFunc("/api/notifications/read-all", s.authed(s.markAllRead)).Methods(http.MethodPut)
	r.HandleFunc("/api/notifications/unread-count", s.authed(s.unreadCount)).Methods(http.MethodGet)
	r.HandleFunc("/api/users/profile", s.authed(s.profile)).Methods(http.MethodGet)
	r.HandleFunc("/api/users/counts", s.authed(s.counts)).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID:[0-9]+}/profile", s.authed(s.profile)).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID:[0-9]+}/counts", s.authed(s.counts)).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID:[0-9]+}/follow", s.authed(s.follow)).Methods(http.MethodPost, http.MethodDelete)
	r.HandleFunc("/api/users/{userID:[0-9]+}/accept-follow", s.authed(s.follow)).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{userID:[0-9]+}/follow-request", s.authed(s.follow)).Methods(http.MethodDelete)
	r.HandleFunc("/api/posts", s.authed(s.listPosts)).Methods(http.MethodGet)
	r.HandleFunc("/api/posts", s.authed(s.createPost)).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.websocket)
	r.Use(s.record)

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser creates an account and returns its user record.
func (s *Server) AddUser(email, password, first, last string) api.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	u := api.User{
		ID:                 s.nextUserID,
		Email:              email,
		FirstName:          first,
		LastName:           last,
		DateOfBirth:        "1990-01-01",
		Role:               "user",
		VerificationStatus: "unverified",
		IsPublic:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.nextUserID++
	s.accounts[email] = &account{password: password, user: u}
	return u
}

// AddNotification queues a notification for userID and pushes it to any
// open websocket of that user.
func (s *Server) AddNotification(userID int, typ, message string) api.Notification {
	s.mu.Lock()
	n := api.Notification{
		ID:        s.nextNotifID,
		UserID:    userID,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.nextNotifID++
	s.notifications[userID] = append([]api.Notification{n}, s.notifications[userID]...)
	s.mu.Unlock()

	s.Push(userID, "notification", n)
	return n
}

// AddPost publishes a post by userID. The newest post is listed first.
func (s *Server) AddPost(userID int, content, privacy string) api.Post {
	author, found := s.userByID(userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	p := api.Post{
		ID:        s.nextPostID,
		UserID:    userID,
		Content:   content,
		Privacy:   privacy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if found {
		p.User = &author
	}
	s.nextPostID++
	s.posts = append([]api.Post{p}, s.posts...)
	return p
}

// SetPostsEnvelope makes the feed answer {"posts": [...]} instead of a bare
// array.
func (s *Server) SetPostsEnvelope(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postsEnvelope = on
}

// Push sends a {"type", "payload"} frame to every websocket of userID.
func (s *Server) Push(userID int, typ string, payload any) int {
	frame, _ := json.Marshal(map[string]any{"type": typ, "payload": payload})

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[userID]...)
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	sent := 0
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, frame); err == nil {
			sent++
		}
	}
	return sent
}

// DropConnections closes every websocket of userID from the server side.
func (s *Server) DropConnections(userID int) {
	s.mu.Lock()
	conns := s.conns[userID]
	delete(s.conns, userID)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Connections returns the number of open websockets for userID.
func (s *Server) Connections(userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[userID])
}

// ActiveSessions returns the number of live session tokens.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetLoginShape changes how login responses encode the user.
func (s *Server) SetLoginShape(shape LoginShape) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginShape = shape
}

// SetSessionDelay delays every session check by d.
func (s *Server) SetSessionDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionDelay = d
}

// FailLogout makes logout answer with status instead of succeeding.
func (s *Server) FailLogout(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = status
}

// Requests returns "METHOD /path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) userFor(r *http.Request) (api.User, bool) {
	c, err := r.Cookie(api.SessionCookie)
	if err != nil {
		return api.User{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[c.Value]
	if !ok {
		return api.User{}, false
	}
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return api.User{}, false
}

func (s *Server) userByID(id int) (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return api.User{}, false
}

func (s *Server) authed(h func(http.ResponseWriter, *http.Request, api.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.userFor(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h(w, r, u)
	}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" || req.DateOfBirth == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	s.mu.Lock()
	_, exists := s.accounts[req.Email]
	s.mu.Unlock()
	if exists {
		writeError(w, http.StatusInternalServerError, "email already registered")
		return
	}

	u := s.AddUser(req.Email, req.Password, req.FirstName, req.LastName)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":           "User registered successfully",
		"user_id":           u.ID,
		"hedera_account_id": fmt.Sprintf("0.0.%d", 1000+u.ID),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	s.mu.Lock()
	a, ok := s.accounts[req.Email]
	if !ok || a.password != req.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	token := uuid.NewString()
	s.sessions[token] = a.user.ID
	shape := s.loginShape
	user := a.user
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     api.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(7 * 24 * time.Hour),
		HttpOnly: true,
	})

	switch shape {
	case LoginNested:
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	case LoginMalformed:
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	default:
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.logoutStatus
	s.mu.Unlock()
	if status != 0 {
		writeError(w, status, "Failed to delete session")
		return
	}

	c, err := r.Cookie(api.SessionCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "No session token provided")
		return
	}

	s.mu.Lock()
	userID := s.sessions[c.Value]
	delete(s.sessions, c.Value)
	s.mu.Unlock()
	s.DropConnections(userID)

	http.SetCookie(w, &http.Cookie{
		Name:    api.SessionCookie,
		Value:   "",
		Path:    "/",
		Expires: time.Now().Add(-time.Hour),
		MaxAge:  -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.sessionDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if _, err := r.Cookie(api.SessionCookie); err != nil {
		writeError(w, http.StatusUnauthorized, "No session token provided")
		return
	}
	u, ok := s.userFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request, u api.User) {
	s.mu.Lock()
	all := append([]api.Notification(nil), s.notifications[u.ID]...)
	s.mu.Unlock()

	start, end := pageBounds(r, len(all))
	writeJSON(w, http.StatusOK, all[start:end])
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request, u api.User) {
	var req struct {
		NotificationID int `json:"notification_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NotificationID == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications[u.ID] {
		if s.notifications[u.ID][i].ID == req.NotificationID {
			s.notifications[u.ID][i].IsRead = true
			writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Notification not found")
}

func (s *Server) markAllRead(w http.ResponseWriter, _ *http.Request, u api.User) {
	s.mu.Lock()
	for i := range s.notifications[u.ID] {
		s.notifications[u.ID][i].IsRead = true
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}

func (s *Server) unreadCount(w http.ResponseWriter, _ *http.Request, u api.User) {
	s.mu.Lock()
	count := 0
	for _, n := range s.notifications[u.ID] {
		if !n.IsRead {
			count++
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func pageBounds(r *http.Request, n int) (start, end int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start = min((page-1)*limit, n)
	end = min(start+limit, n)
	return start, end
}

// visible applies the feed audience rules: public posts, the viewer's own
// posts, and almost_private posts of people the viewer follows.
func (s *Server) visible(p api.Post, viewer int) bool {
	switch {
	case p.Privacy == api.PrivacyPublic, p.UserID == viewer:
		return true
	case p.Privacy == api.PrivacyAlmostPrivate:
		return s.follows[viewer][p.UserID]
	default:
		return false
	}
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request, u api.User) {
	s.mu.Lock()
	feed := []api.Post{}
	for _, p := range s.posts {
		if s.visible(p, u.ID) {
			feed = append(feed, p)
		}
	}
	envelope := s.postsEnvelope
	s.mu.Unlock()

	start, end := pageBounds(r, len(feed))
	page := feed[start:end]
	if envelope {
		writeJSON(w, http.StatusOK, map[string]any{"posts": page})
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, u api.User) {
	var req api.NewPost
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Post content is required")
		return
	}
	if req.Privacy == "" {
		req.Privacy = api.PrivacyPublic
	}
	p := s.AddPost(u.ID, req.Content, req.Privacy)
	writeJSON(w, http.StatusCreated, p)
}

func targetID(r *http.Request, self api.User) int {
	if raw, ok := mux.Vars(r)["userID"]; ok {
		id, _ := strconv.Atoi(raw)
		return id
	}
	return self.ID
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request, u api.User) {
	target, ok := s.userByID(targetID(r, u))
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (s *Server) counts(w http.ResponseWriter, r *http.Request, u api.User) {
	id := targetID(r, u)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := api.FollowCounts{Following: len(s.follows[id])}
	for _, followed := range s.follows {
		if followed[id] {
			out.Followers++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) follow(w http.ResponseWriter, r *http.Request, u api.User) {
	id := targetID(r, u)
	if _, ok := s.userByID(id); !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.HasSuffix(r.URL.Path, "/accept-follow"):
		if s.follows[id] == nil {
			s.follows[id] = make(map[int]bool)
		}
		s.follows[id][u.ID] = true
	case r.Method == http.MethodPost:
		if s.follows[u.ID] == nil {
			s.follows[u.ID] = make(map[int]bool)
		}
		s.follows[u.ID][id] = true
	default:
		delete(s.follows[u.ID], id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[u.ID] = append(s.conns[u.ID], conn)
	s.mu.Unlock()

	go func() {
		defer s.forget(u.ID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) forget(userID int, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.conns[userID]
	for i, c := range conns {
		if c == conn {
			s.conns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	_ = conn.Close()
}
