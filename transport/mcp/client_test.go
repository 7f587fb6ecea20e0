package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/engine"
	"github.com/wricardo/memory-match/game/service"
)

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func jsonServer(t *testing.T, method, path string, status int, body interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method || r.URL.Path != path {
			t.Errorf("Expected %s %s, got %s %s", method, path, r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := jsonServer(t, "GET", "/api/themes", http.StatusOK, []service.ThemeInfo{{Name: "classic"}})
	client := NewClient(server.URL)

	var themes []service.ThemeInfo
	if err := client.apiCall(context.Background(), "GET", "/api/themes", nil, &themes); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if len(themes) != 1 || themes[0].Name != "classic" {
		t.Errorf("Unexpected response %+v", themes)
	}
}

func TestClient_apiCall_Errors(t *testing.T) {
	server := jsonServer(t, "GET", "/api/rooms/nope", http.StatusNotFound, map[string]string{"error": "room not found"})
	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api/rooms/nope", nil, nil)
	if err == nil || err.Error() != "room not found" {
		t.Errorf("Expected the API error message, got %v", err)
	}

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer plain.Close()

	err = NewClient(plain.URL).apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error', got %v", err)
	}

	if err := NewClient("http://invalid-url-that-does-not-exist:9999").apiCall(context.Background(), "GET", "/api", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_listRooms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("joinable") != "true" {
			t.Errorf("Expected joinable=true, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": 1,
			"rooms": []service.RoomSummary{{
				RoomID:           "den",
				ParticipantCount: 1,
				MaxParticipants:  4,
				Mode:             engine.ModeSpeed,
				BoardSize:        4,
				Status:           engine.StatusWaiting,
				HasPassword:      true,
			}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleListRooms(context.Background(), toolRequest("list_rooms", map[string]interface{}{"joinable": true}))
	if err != nil {
		t.Fatalf("list_rooms failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"Joinable rooms (1)", "den: waiting, speed 4x4", "1/4 players, password"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
}

func TestClient_getRoom(t *testing.T) {
	winner := "alice"
	room := service.RoomInfo{
		Archived: true,
		Room: engine.View{
			RoomID:   "den",
			Settings: engine.RoomSettings{BoardSize: 2},
			Status:   engine.StatusFinished,
			Mode:     engine.ModeStandard,
			Participants: []engine.Participant{
				{UserID: "alice", DisplayName: "Alice", Score: 20, MatchesFound: 2, Connected: true},
			},
			Tiles: []engine.TileView{
				{ID: 0, Value: "🍎", Matched: true},
				{ID: 1, Value: "🍎", Matched: true},
				{ID: 2, FaceUp: true, Value: "🍌"},
				{ID: 3},
			},
			WinnerUserID: &winner,
			EndReason:    engine.EndCompleted,
		},
	}
	server := jsonServer(t, "GET", "/api/rooms/den", http.StatusOK, room)
	client := NewClient(server.URL)

	result, err := client.handleGetRoom(context.Background(), toolRequest("get_room", map[string]interface{}{"room_id": "den"}))
	if err != nil {
		t.Fatalf("get_room failed: %v", err)
	}
	text := resultText(t, result)
	for _, want := range []string{"Room den (archived)", "Alice: 20 points", "[🍎]", "🍌", "??", "winner alice"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}

	result, _ = client.handleGetRoom(context.Background(), toolRequest("get_room", map[string]interface{}{}))
	if !result.IsError {
		t.Error("Missing room_id should be a tool error")
	}
}

func TestClient_suspicion(t *testing.T) {
	info := service.SuspicionInfo{
		UserID:         "mallory",
		Known:          true,
		ViolationCount: 5,
		Blocked:        true,
		HistorySize:    12,
		Reasons: []anticheat.Violation{
			{Reason: anticheat.ReasonTooFast, Detail: "3 actions in 40ms", TimestampMs: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()},
		},
	}
	server := jsonServer(t, "GET", "/api/anticheat/mallory", http.StatusOK, info)
	client := NewClient(server.URL)

	result, err := client.handleSuspicionStatus(context.Background(), toolRequest("suspicion_status", map[string]interface{}{"user_id": "mallory"}))
	if err != nil {
		t.Fatalf("suspicion_status failed: %v", err)
	}
	text := resultText(t, result)
	for _, want := range []string{"BLOCKED", "5 violations", "2026-01-01T00:00:00Z too_fast: 3 actions in 40ms"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}

	if got := formatSuspicion(&service.SuspicionInfo{UserID: "nobody"}); !strings.Contains(got, "No anti-cheat record") {
		t.Errorf("Unexpected output for an unknown user: %s", got)
	}
}

func TestClient_clearSuspicion(t *testing.T) {
	server := jsonServer(t, "DELETE", "/api/anticheat/mallory", http.StatusOK, map[string]interface{}{"cleared": true})
	client := NewClient(server.URL)

	result, err := client.handleClearSuspicion(context.Background(), toolRequest("clear_suspicion", map[string]interface{}{"user_id": "mallory"}))
	if err != nil {
		t.Fatalf("clear_suspicion failed: %v", err)
	}
	if result.IsError || !strings.Contains(resultText(t, result), "Cleared") {
		t.Errorf("Unexpected result %+v", result)
	}
}

func TestFormatRules(t *testing.T) {
	countdown := 60
	rules := &service.RulesInfo{
		BoardSizes:        []int{4, 6, 8},
		MinParticipants:   2,
		MaxParticipants:   4,
		BaseMatchPoints:   10,
		StreakBonusPoints: 5,
		TieBreakSeconds:   30,
		MaxTieBreaks:      5,
		Modes: []service.ModeInfo{
			{Mode: engine.ModeSpeed, ScoreMultiplier: 1.5, CountdownSeconds: &countdown, TurnAfterMatch: "pass", PowerUpFraction: 0.25},
		},
		PowerUps: []service.PowerUpInfo{
			{Kind: engine.Swap, Description: "Exchanges two tiles", Targets: 2},
			{Kind: engine.ExtraTurn, Description: "Keeps the turn", Passive: true},
		},
	}

	text := formatRules(rules)
	for _, want := range []string{"Players: 2-4", "speed: x1.5 points, 60s countdown", "(2 target tiles)", "(passive)"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output, got: %s", want, text)
		}
	}
}

func TestFormatBoard_TieBreakOnOneLine(t *testing.T) {
	got := formatBoard([]engine.TileView{{ID: 0}, {ID: 1}}, 4)
	if strings.Count(got, "\n") != 1 {
		t.Errorf("Expected a single row, got %q", got)
	}
}
