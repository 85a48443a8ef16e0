package fakeapi

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nhle/taskboard/internal/model"
)

const tokenTTL = 24 * time.Hour

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) issue(w http.ResponseWriter, status int, u model.User) {
	token := s.Token(u.ID, tokenTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Expires:  s.now().Add(tokenTTL),
	})
	writeJSON(w, status, map[string]any{"user": u, "token": token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Email == "" || in.Name == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Please add all fields")
		return
	}

	s.mu.Lock()
	for _, acct := range s.accounts {
		if strings.EqualFold(acct.user.Email, in.Email) {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
	}
	u := model.User{ID: uuid.NewString(), Name: in.Name, Email: in.Email}
	s.accounts[u.ID] = &account{user: u, password: in.Password}
	s.mu.Unlock()

	s.issue(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	var found *account
	for _, acct := range s.accounts {
		if strings.EqualFold(acct.user.Email, in.Email) && acct.password == in.Password {
			found = acct
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.issue(w, http.StatusOK, found.user)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, me model.User) {
	writeJSON(w, http.StatusOK, map[string]any{"user": me})
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, me model.User) {
	var in model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	acct := s.accounts[me.ID]
	if in.Name != "" {
		acct.user.Name = in.Name
	}
	if in.Email != "" {
		acct.user.Email = in.Email
	}
	u := acct.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request, _ model.User) {
	s.mu.Lock()
	users := make([]model.User, 0, len(s.accounts))
	for _, acct := range s.accounts {
		users = append(users, acct.user)
	}
	s.mu.Unlock()

	slices.SortFunc(users, func(a, b model.User) int { return strings.Compare(a.Name, b.Name) })
	writeJSON(w, http.StatusOK, users)
}

// handleListTasks serves a bare array, filtered and optionally sorted.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, _ model.User) {
	q := r.URL.Query()
	status, priority := q.Get("status"), q.Get("priority")

	s.mu.Lock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if status != "" && string(t.Status) != status {
			continue
		}
		if priority != "" && string(t.Priority) != priority {
			continue
		}
		out = append(out, s.expandLocked(t))
	}
	s.mu.Unlock()

	sortTasks(out, q.Get("sortBy"), q.Get("sortOrder"))
	writeJSON(w, http.StatusOK, out)
}

// handleDashboard serves the wrapped {"tasks": [...]} shape.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, me model.User) {
	kind := mux.Vars(r)["kind"]
	now := s.now()

	var keep func(model.Task) bool
	switch kind {
	case "assigned":
		keep = func(t model.Task) bool { return t.AssigneeID() == me.ID }
	case "created":
		keep = func(t model.Task) bool { return t.CreatorID() == me.ID }
	case "overdue":
		keep = func(t model.Task) bool {
			mine := t.AssigneeID() == me.ID || t.CreatorID() == me.ID
			return mine && t.IsOverdue(now)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	s.mu.Lock()
	out := make([]model.Task, 0)
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, s.expandLocked(t))
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, _ model.User) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			writeJSON(w, http.StatusOK, s.expandLocked(t))
			return
		}
	}
	writeError(w, http.StatusNotFound, "Task not found")
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, me model.User) {
	var in model.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := model.ValidateTaskInput(in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in = in.Normalize()
	now := s.now()
	t := model.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Status:      in.Status,
		CreatedBy:   &model.User{ID: me.ID},
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if in.AssignedToID != "" {
		t.AssignedTo = &model.User{ID: in.AssignedToID}
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	out := s.expandLocked(t)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
	if s.serverEvents {
		s.Broadcast("task-created", out)
	}
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request, _ model.User) {
	id := mux.Vars(r)["id"]

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.tasks, func(t model.Task) bool { return t.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	t, err := applyPatch(s.tasks[idx], patch)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.UpdatedAt = s.now()
	t.Version++
	s.tasks[idx] = t
	out := s.expandLocked(t)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
	if s.serverEvents {
		raw, err := out.FullJSON()
		if err != nil {
			panic(err)
		}
		s.Broadcast("task-updated", json.RawMessage(raw))
	}
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, me model.User) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	idx := slices.IndexFunc(s.tasks, func(t model.Task) bool { return t.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	if creator := s.tasks[idx].CreatorID(); creator != "" && creator != me.ID {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "Not authorized to delete this task")
		return
	}
	s.tasks = slices.Delete(s.tasks, idx, idx+1)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Task removed"})
	if s.serverEvents {
		s.Broadcast("task-deleted", id)
	}
}

// applyPatch writes the keys present in patch onto t; explicit nulls clear.
func applyPatch(t model.Task, patch map[string]json.RawMessage) (model.Task, error) {
	isNull := func(raw json.RawMessage) bool { return string(raw) == "null" }

	for key, raw := range patch {
		switch key {
		case "title":
			if err := json.Unmarshal(raw, &t.Title); err != nil {
				return t, err
			}
			if err := model.ValidateTitle(t.Title); err != nil {
				return t, err
			}
		case "description":
			if err := json.Unmarshal(raw, &t.Description); err != nil {
				return t, err
			}
		case "dueDate":
			if isNull(raw) {
				t.DueDate = nil
				continue
			}
			var due time.Time
			if err := json.Unmarshal(raw, &due); err != nil {
				return t, err
			}
			t.DueDate = &due
		case "priority":
			if err := json.Unmarshal(raw, &t.Priority); err != nil {
				return t, err
			}
		case "status":
			if err := json.Unmarshal(raw, &t.Status); err != nil {
				return t, err
			}
		case "assignedTo":
			if isNull(raw) {
				t.AssignedTo = nil
				continue
			}
			var id string
			if err := json.Unmarshal(raw, &id); err != nil {
				return t, err
			}
			t.AssignedTo = &model.User{ID: id}
		}
	}
	return t, nil
}

func sortTasks(tasks []model.Task, by, order string) {
	var cmp func(a, b model.Task) int
	switch by {
	case "title":
		cmp = func(a, b model.Task) int { return strings.Compare(a.Title, b.Title) }
	case "priority":
		cmp = func(a, b model.Task) int { return a.Priority.Rank() - b.Priority.Rank() }
	case "status":
		cmp = func(a, b model.Task) int { return a.Status.Rank() - b.Status.Rank() }
	case "dueDate":
		cmp = func(a, b model.Task) int {
			switch {
			case a.DueDate == nil && b.DueDate == nil:
				return 0
			case a.DueDate == nil:
				return 1
			case b.DueDate == nil:
				return -1
			}
			return a.DueDate.Compare(*b.DueDate)
		}
	case "createdAt":
		cmp = func(a, b model.Task) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return
	}
	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		if order == "desc" {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
}
