package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/memory-match/game/engine"
	"github.com/wricardo/memory-match/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Memory Match",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Memory Match - MCP Interface

This is a thin client that proxies all requests to the REST API server.
Gameplay happens over WebSocket; these tools observe rooms and administer
the anti-cheat monitor.

AVAILABLE TOOLS:
- list_rooms: List rooms, optionally only the joinable ones
- get_room: Masked board and scores of a live or archived room
- list_themes: Symbol sets and the largest board each can fill
- game_rules: Modes, scoring, tie-breaks and power-ups
- suspicion_status: Anti-cheat record of a user
- clear_suspicion: Clear a user's record and lift a block`),
	)

	c.registerTools()
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func noArgs() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Rooms
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List rooms, most recently active first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"joinable": map[string]interface{}{
					"type":        "boolean",
					"description": "Only rooms that are waiting for players and not full",
				},
			},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get the masked snapshot of a room. Face-down tiles are shown as ??",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": stringProp("Room ID"),
			},
			Required: []string{"room_id"},
		},
	}, c.handleGetRoom)

	// Catalogue
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_themes",
		Description: "List the available tile themes",
		InputSchema: noArgs(),
	}, c.handleListThemes)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_rules",
		Description: "Describe modes, scoring, tie-breaks and power-ups",
		InputSchema: noArgs(),
	}, c.handleGameRules)

	// Anti-cheat
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "suspicion_status",
		Description: "Show the anti-cheat record of a user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("User ID"),
			},
			Required: []string{"user_id"},
		},
	}, c.handleSuspicionStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "clear_suspicion",
		Description: "Clear a user's anti-cheat record, lifting any block",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("User ID"),
			},
			Required: []string{"user_id"},
		},
	}, c.handleClearSuspicion)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	return args
}

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	v, _ := arguments(request)[key].(string)
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// Tool handlers

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	joinable, _ := arguments(request)["joinable"].(bool)

	path := "/api/rooms"
	if joinable {
		path += "?joinable=true"
	}

	var response struct {
		Count int                   `json:"count"`
		Rooms []service.RoomSummary `json:"rooms"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomList(response.Rooms, joinable)), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, err := requiredString(request, "room_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var room service.RoomInfo
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoom(&room)), nil
}

func (c *Client) handleListThemes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var themes []service.ThemeInfo
	if err := c.apiCall(ctx, "GET", "/api/themes", nil, &themes); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Themes (%d):\n\n", len(themes))
	for _, t := range themes {
		source := t.Filename
		if t.BuiltIn {
			source = "built-in"
		}
		fmt.Fprintf(&b, "- %s: %d symbols, boards up to %dx%d (%s)\n",
			t.Name, t.SymbolCount, t.MaxBoardSize, t.MaxBoardSize, source)
		if t.Description != "" {
			fmt.Fprintf(&b, "  %s\n", t.Description)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var rules service.RulesInfo
	if err := c.apiCall(ctx, "GET", "/api/rules", nil, &rules); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRules(&rules)), nil
}

func (c *Client) handleSuspicionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requiredString(request, "user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info service.SuspicionInfo
	if err := c.apiCall(ctx, "GET", "/api/anticheat/"+url.PathEscape(userID), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSuspicion(&info)), nil
}

func (c *Client) handleClearSuspicion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requiredString(request, "user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := c.apiCall(ctx, "DELETE", "/api/anticheat/"+url.PathEscape(userID), nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cleared anti-cheat record of %s", userID)), nil
}

// Formatting

func formatRoomList(rooms []service.RoomSummary, joinable bool) string {
	var b strings.Builder
	label := "Rooms"
	if joinable {
		label = "Joinable rooms"
	}
	fmt.Fprintf(&b, "%s (%d):\n\n", label, len(rooms))
	for _, r := range rooms {
		lock := ""
		if r.HasPassword {
			lock = ", password"
		}
		fmt.Fprintf(&b, "- %s: %s, %s %dx%d, %d/%d players%s, active %s\n",
			r.RoomID, r.Status, r.Mode, r.BoardSize, r.BoardSize,
			r.ParticipantCount, r.MaxParticipants, lock, r.LastActivity.Format("15:04:05"))
	}
	return b.String()
}

func formatRoom(room *service.RoomInfo) string {
	v := room.Room
	var b strings.Builder

	fmt.Fprintf(&b, "Room %s", v.RoomID)
	if room.Archived {
		b.WriteString(" (archived)")
	}
	fmt.Fprintf(&b, "\nStatus: %s | Mode: %s | Round: %d\n", v.Status, v.Mode, v.Round)
	if v.SecondsRemaining != nil {
		fmt.Fprintf(&b, "Time left: %ds", *v.SecondsRemaining)
		if v.TimerFrozen {
			b.WriteString(" (frozen)")
		}
		b.WriteString("\n")
	}
	if v.CurrentTurnUserID != "" {
		fmt.Fprintf(&b, "Turn: %s\n", v.CurrentTurnUserID)
	}

	b.WriteString("\nPlayers:\n")
	for _, p := range v.Participants {
		state := ""
		if !p.Connected {
			state = " [disconnected]"
		}
		fmt.Fprintf(&b, "- %s: %d points, %d matches, streak %d%s\n",
			p.DisplayName, p.Score, p.MatchesFound, p.MatchStreak, state)
	}

	if grid := formatBoard(v.Tiles, v.Settings.BoardSize); grid != "" {
		b.WriteString("\nBoard:\n")
		b.WriteString(grid)
	}

	if v.Status == engine.StatusFinished {
		fmt.Fprintf(&b, "\nEnded: %s", v.EndReason)
		if v.WinnerUserID != nil {
			fmt.Fprintf(&b, ", winner %s", *v.WinnerUserID)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatBoard renders the tiles row by row. A tie-break board does not fill
// the configured size and is printed on one line.
func formatBoard(tiles []engine.TileView, size int) string {
	if len(tiles) == 0 {
		return ""
	}
	if size <= 0 || len(tiles) != size*size {
		size = len(tiles)
	}
	var b strings.Builder
	for i, t := range tiles {
		cell := "??"
		switch {
		case t.Matched:
			cell = "[" + t.Value + "]"
		case t.FaceUp:
			cell = t.Value
		}
		b.WriteString(fmt.Sprintf("%2d:%-6s", t.ID, cell))
		if (i+1)%size == 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatRules(rules *service.RulesInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Board sizes: %v\n", rules.BoardSizes)
	fmt.Fprintf(&b, "Players: %d-%d\n", rules.MinParticipants, rules.MaxParticipants)
	fmt.Fprintf(&b, "Scoring: %d points per pair plus %d per streak step\n", rules.BaseMatchPoints, rules.StreakBonusPoints)
	fmt.Fprintf(&b, "Tie-break: %ds single-pair rounds, at most %d\n", rules.TieBreakSeconds, rules.MaxTieBreaks)

	b.WriteString("\nModes:\n")
	for _, m := range rules.Modes {
		timer := "no timer"
		if m.CountdownSeconds != nil {
			timer = fmt.Sprintf("%ds countdown", *m.CountdownSeconds)
		}
		fmt.Fprintf(&b, "- %s: x%.1f points, %s, after a match %s, power-ups on %.0f%% of pairs\n",
			m.Mode, m.ScoreMultiplier, timer, m.TurnAfterMatch, m.PowerUpFraction*100)
	}

	b.WriteString("\nPower-ups:\n")
	for _, p := range rules.PowerUps {
		fmt.Fprintf(&b, "- %s: %s", p.Kind, p.Description)
		if p.Passive {
			b.WriteString(" (passive)")
		} else if p.Targets > 0 {
			fmt.Fprintf(&b, " (%d target tiles)", p.Targets)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatSuspicion(info *service.SuspicionInfo) string {
	if !info.Known {
		return fmt.Sprintf("No anti-cheat record for %s", info.UserID)
	}
	var b strings.Builder
	state := "active"
	if info.Blocked {
		state = "BLOCKED"
	}
	fmt.Fprintf(&b, "User %s: %s, %d violations, %d recent actions\n",
		info.UserID, state, info.ViolationCount, info.HistorySize)
	for _, v := range info.Reasons {
		at := time.UnixMilli(v.TimestampMs).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "- %s %s", at, v.Reason)
		if v.Detail != "" {
			fmt.Fprintf(&b, ": %s", v.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}
