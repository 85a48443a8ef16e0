package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.rejectSockets
	s.mu.Unlock()
	if reject {
		http.Error(w, "sockets disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		s.mu.Lock()
		s.frames = append(s.frames, f)
		s.mu.Unlock()
		s.route(p, f)
	}
}

// route mirrors the service's relay: user-join binds the peer to a user,
// task events fan out to the other peers, and task-assigned is turned into
// a notification for the assignee only.
func (s *Server) route(from *peer, f Frame) {
	switch f.Event {
	case "user-join":
		var id string
		if err := json.Unmarshal(f.Data, &id); err != nil {
			return
		}
		s.mu.Lock()
		from.userID = id
		s.joins = append(s.joins, id)
		s.mu.Unlock()

	case "task-updated", "task-created", "task-deleted":
		for _, p := range s.snapshotPeers() {
			if p == from && !s.toSender {
				continue
			}
			_ = p.send(f)
		}

	case "task-assigned":
		var a struct {
			AssignedToID string `json:"assignedToId"`
			TaskTitle    string `json:"taskTitle"`
			TaskID       string `json:"taskId"`
		}
		if err := json.Unmarshal(f.Data, &a); err != nil {
			return
		}
		notice, _ := json.Marshal(map[string]string{
			"taskId":    a.TaskID,
			"taskTitle": a.TaskTitle,
			"message":   fmt.Sprintf("You have been assigned a new task: %s", a.TaskTitle),
		})
		for _, p := range s.snapshotPeers() {
			s.mu.Lock()
			target := p.userID == a.AssignedToID
			s.mu.Unlock()
			if target {
				_ = p.send(Frame{Event: "assignment-notification", Data: notice})
			}
		}
	}
}

func (s *Server) snapshotPeers() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Broadcast pushes event to every connected peer.
func (s *Server) Broadcast(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	for _, p := range s.snapshotPeers() {
		_ = p.send(Frame{Event: event, Data: raw})
	}
}

// DropPeers closes every push connection from the server side.
func (s *Server) DropPeers() {
	for _, p := range s.snapshotPeers() {
		p.conn.Close()
	}
}

// PeerCount returns the number of live push connections.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Joins returns every user-join identity received, in order.
func (s *Server) Joins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.joins))
	copy(out, s.joins)
	return out
}

// Frames returns every frame received from clients, in order.
func (s *Server) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// FramesNamed returns the received frames carrying event.
func (s *Server) FramesNamed(event string) []Frame {
	var out []Frame
	for _, f := range s.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}
