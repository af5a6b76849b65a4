package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adirajukashyap/drawd/internal/history"
	"github.com/adirajukashyap/drawd/internal/room"
	"github.com/adirajukashyap/drawd/internal/ws"
	"github.com/adirajukashyap/drawd/pkg/draw"
)

func setupTestAPI(t *testing.T) *API {
	t.Helper()

	store, err := history.Open(history.MemoryDSN)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := room.NewRegistry()
	hub := ws.NewHub(registry, store)
	go hub.Run()

	return New(hub, registry, store)
}

func commitStroke(t *testing.T, api *API, roomID string, pts ...draw.Point) {
	t.Helper()
	session := api.registry.GetOrCreate(roomID)
	opID := session.Log.BeginStroke("u1", draw.ToolBrush, "#e74c3c", 4, pts)
	if session.Log.EndStroke(opID, nil) == nil {
		t.Fatal("Failed to finalize stroke")
	}
	if err := api.store.RecordCommit(roomID, opID, "u1", "brush", len(pts)); err != nil {
		t.Fatalf("RecordCommit: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	api.HealthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()

	api.StatsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if _, ok := response["active_rooms"]; !ok {
		t.Error("Response should contain 'active_rooms'")
	}
	if _, ok := response["active_clients"]; !ok {
		t.Error("Response should contain 'active_clients'")
	}
	if _, ok := response["total_commits"]; !ok {
		t.Error("Response should contain 'total_commits'")
	}
}

func TestGetRoom(t *testing.T) {
	api := setupTestAPI(t)

	roomID := "get-test-room"
	commitStroke(t, api, roomID, draw.Point{X: 1, Y: 2})

	req := httptest.NewRequest("GET", "/api/rooms/"+roomID, nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["id"] != roomID {
		t.Errorf("Expected room ID '%s', got '%v'", roomID, response["id"])
	}
	if response["commit_count"].(float64) != 1 {
		t.Errorf("Expected commit_count 1, got %v", response["commit_count"])
	}
}

func TestGetRoomNotFound(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/api/rooms/non-existent", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListRooms(t *testing.T) {
	api := setupTestAPI(t)

	for i := 0; i < 5; i++ {
		if err := api.store.EnsureRoom("list-room-" + string(rune('a'+i))); err != nil {
			t.Fatalf("EnsureRoom: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/rooms", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	rooms, ok := response["rooms"].([]any)
	if !ok {
		t.Fatal("Response should contain 'rooms' array")
	}

	if len(rooms) != 5 {
		t.Errorf("Expected 5 rooms, got %d", len(rooms))
	}
}

func TestListRoomsPagination(t *testing.T) {
	api := setupTestAPI(t)

	for i := 0; i < 10; i++ {
		if err := api.store.EnsureRoom("page-room-" + string(rune('a'+i))); err != nil {
			t.Fatalf("EnsureRoom: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/rooms?limit=3", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	var response map[string]any
	json.NewDecoder(w.Body).Decode(&response)

	rooms := response["rooms"].([]any)
	if len(rooms) != 3 {
		t.Errorf("Expected 3 rooms with limit, got %d", len(rooms))
	}

	req = httptest.NewRequest("GET", "/api/rooms?limit=3&offset=7", nil)
	w = httptest.NewRecorder()

	api.RoomsRouter(w, req)

	json.NewDecoder(w.Body).Decode(&response)

	rooms = response["rooms"].([]any)
	if len(rooms) != 3 {
		t.Errorf("Expected 3 rooms with offset, got %d", len(rooms))
	}
}

func TestGetRoomOps(t *testing.T) {
	api := setupTestAPI(t)

	roomID := "ops-room"
	commitStroke(t, api, roomID, draw.Point{X: 1, Y: 2}, draw.Point{X: 3, Y: 4})

	// A stroke still streaming must not appear.
	api.registry.Get(roomID).Log.BeginStroke("u2", draw.ToolBrush, "#000", 4, nil)

	req := httptest.NewRequest("GET", "/api/rooms/"+roomID+"/ops", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Room string        `json:"room"`
		Ops  []draw.Stroke `json:"ops"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Room != roomID {
		t.Errorf("Expected room '%s', got '%s'", roomID, response.Room)
	}
	if len(response.Ops) != 1 {
		t.Fatalf("Expected 1 finalized op, got %d", len(response.Ops))
	}
	if len(response.Ops[0].Points) != 2 {
		t.Errorf("Expected 2 points, got %d", len(response.Ops[0].Points))
	}
}

func TestGetRoomOpsNotFound(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/api/rooms/ghost/ops", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetRoomImage(t *testing.T) {
	api := setupTestAPI(t)

	roomID := "image-room"
	commitStroke(t, api, roomID, draw.Point{X: 5, Y: 5}, draw.Point{X: 40, Y: 40})

	req := httptest.NewRequest("GET", "/api/rooms/"+roomID+"/image?width=64&height=64", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	magic := []byte{0x89, 'P', 'N', 'G'}
	if body := w.Body.Bytes(); len(body) < 4 || !bytes.Equal(body[:4], magic) {
		t.Error("Response body is not a PNG")
	}
}

func TestGetRoomImageRejectsHugeDimensions(t *testing.T) {
	api := setupTestAPI(t)

	commitStroke(t, api, "big-room", draw.Point{X: 1, Y: 1})

	req := httptest.NewRequest("GET", "/api/rooms/big-room/image?width=100000", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRoomsRouter(t *testing.T) {
	api := setupTestAPI(t)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{
			name:           "GET /api/rooms - list",
			method:         "GET",
			path:           "/api/rooms",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST /api/rooms - not allowed",
			method:         "POST",
			path:           "/api/rooms",
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "GET unknown subresource",
			method:         "GET",
			path:           "/api/rooms/x/bogus",
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			api.RoomsRouter(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}
