package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adirajukashyap/drawd/internal/history"
	"github.com/adirajukashyap/drawd/internal/render"
	"github.com/adirajukashyap/drawd/internal/room"
	"github.com/adirajukashyap/drawd/internal/ws"
)

type API struct {
	hub      *ws.Hub
	registry *room.Registry
	store    *history.Store
}

func New(hub *ws.Hub, registry *room.Registry, store *history.Store) *API {
	return &API{
		hub:      hub,
		registry: registry,
		store:    store,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Error encoding JSON response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.store != nil {
		dbStats, err := a.store.GetStats()
		if err == nil {
			stats["total_rooms"] = dbStats["room_count"]
			stats["total_commits"] = dbStats["commit_count"]
			stats["total_joins"] = dbStats["join_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

type RoomResponse struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ActiveUsers int       `json:"active_users"`
	CommitCount int       `json:"commit_count,omitempty"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	rooms, err := a.store.ListRooms(limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}

	activeRooms := a.hub.GetActiveRooms()

	response := make([]RoomResponse, len(rooms))
	for i, rm := range rooms {
		response[i] = RoomResponse{
			ID:          rm.ID,
			CreatedAt:   rm.CreatedAt,
			UpdatedAt:   rm.UpdatedAt,
			ActiveUsers: activeRooms[rm.ID],
		}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms":  response,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	rm, err := a.store.GetRoom(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if rm == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	commitCount, _ := a.store.CommitCount(roomID)
	activeRooms := a.hub.GetActiveRooms()

	jsonResponse(w, http.StatusOK, RoomResponse{
		ID:          rm.ID,
		CreatedAt:   rm.CreatedAt,
		UpdatedAt:   rm.UpdatedAt,
		ActiveUsers: activeRooms[roomID],
		CommitCount: commitCount,
	})
}

// GetRoomOpsHandler returns the live finalized operation sequence, in
// authoritative order. Strokes still streaming are not included.
func (a *API) GetRoomOpsHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	session := a.registry.Get(roomID)
	if session == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"room": roomID,
		"ops":  session.Log.Operations(),
	})
}

// GetRoomImageHandler rasterizes the room's visible strokes to PNG.
// Optional ?width= and ?height= override the default canvas size.
func (a *API) GetRoomImageHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	session := a.registry.Get(roomID)
	if session == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	width, _ := strconv.Atoi(r.URL.Query().Get("width"))
	height, _ := strconv.Atoi(r.URL.Query().Get("height"))
	if width > 4096 || height > 4096 {
		errorResponse(w, http.StatusBadRequest, "Image dimensions too large")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := render.EncodePNG(w, session.Log.Operations(), width, height); err != nil {
		logrus.WithError(err).WithField("room", roomID).Error("Failed to render room image")
	}
}

func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")
	path = strings.Trim(path, "/")

	// /api/rooms
	if path == "" {
		a.ListRoomsHandler(w, r)
		return
	}

	// /api/rooms/{id}[/ops|/image]
	roomID, rest, _ := strings.Cut(path, "/")
	if roomID == "" {
		errorResponse(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	switch rest {
	case "":
		a.GetRoomHandler(w, r, roomID)
	case "ops":
		a.GetRoomOpsHandler(w, r, roomID)
	case "image":
		a.GetRoomImageHandler(w, r, roomID)
	default:
		errorResponse(w, http.StatusNotFound, "Not found")
	}
}
