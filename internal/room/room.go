// Package room maps room identifiers to live drawing sessions and
// tracks each session's participants and their display colors.
package room

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/adirajukashyap/drawd/internal/canvas"
	"github.com/adirajukashyap/drawd/pkg/draw"
)

// Display colors assigned to participants, deduplicated per room until
// the palette runs out.
var palette = []string{
	"#ef4444", "#f59e0b", "#10b981", "#3b82f6", "#8b5cf6",
	"#ec4899", "#14b8a6", "#22c55e", "#84cc16", "#eab308",
}

// Session is one isolated drawing canvas: its participants, their
// color assignments, and the authoritative operation log. Sessions are
// created on first join and live for the process lifetime.
type Session struct {
	ID  string
	Log *canvas.Log

	mu           sync.RWMutex
	participants map[string]*draw.Participant
	order        []string
	colors       map[string]string
}

func newSession(id string) *Session {
	return &Session{
		ID:           id,
		Log:          canvas.NewLog(),
		participants: make(map[string]*draw.Participant),
		colors:       make(map[string]string),
	}
}

// AssignColor returns the color for a participant, assigning one if
// needed: any previous assignment wins, then the first palette entry
// not held by another member, then a random palette entry (duplicates
// permitted once the palette is exhausted).
func (s *Session) AssignColor(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignColorLocked(userID)
}

func (s *Session) assignColorLocked(userID string) string {
	if c, ok := s.colors[userID]; ok {
		return c
	}
	taken := make(map[string]bool, len(s.colors))
	for _, c := range s.colors {
		taken[c] = true
	}
	color := ""
	for _, c := range palette {
		if !taken[c] {
			color = c
			break
		}
	}
	if color == "" {
		color = palette[rand.Intn(len(palette))]
	}
	s.colors[userID] = color
	return color
}

// Join adds a participant to the session, assigning a color and a
// fallback display name when none was supplied. Joining twice with the
// same identity is idempotent.
func (s *Session) Join(userID, name string) draw.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.participants[userID]; ok {
		return *p
	}
	if name == "" {
		short := userID
		if len(short) > 4 {
			short = short[:4]
		}
		name = fmt.Sprintf("user-%s", short)
	}
	p := &draw.Participant{
		ID:    userID,
		Name:  name,
		Color: s.assignColorLocked(userID),
	}
	s.participants[userID] = p
	s.order = append(s.order, userID)
	return *p
}

// Leave removes the participant's membership and color assignment.
// Unknown participants are a no-op.
func (s *Session) Leave(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[userID]; !ok {
		return false
	}
	delete(s.participants, userID)
	delete(s.colors, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Participant looks up a current member.
func (s *Session) Participant(userID string) (draw.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[userID]
	if !ok {
		return draw.Participant{}, false
	}
	return *p, true
}

// Participants returns the member list in join order.
func (s *Session) Participants() []draw.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]draw.Participant, 0, len(s.order))
	for _, id := range s.order {
		if p, ok := s.participants[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (s *Session) ParticipantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

// Registry owns the room map. There is no eviction: sessions
// accumulate for the life of the process.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Session)}
}

// GetOrCreate returns the session for roomID, creating it with an
// empty operation log on first use.
func (r *Registry) GetOrCreate(roomID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[roomID]
	if !ok {
		s = newSession(roomID)
		r.rooms[roomID] = s
	}
	return s
}

// Get returns the session for roomID, or nil if it was never created.
func (r *Registry) Get(roomID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// RemoveParticipant drops the participant's membership from every room
// that has it. Absent lookups are no-ops.
func (r *Registry) RemoveParticipant(userID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.rooms {
		s.Leave(userID)
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Sessions returns every live session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.rooms))
	for _, s := range r.rooms {
		out = append(out, s)
	}
	return out
}
