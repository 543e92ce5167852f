package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"agent-arena/internal/bridge"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies; a plan is the largest legitimate one.
const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *routerHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	width, height := h.engine.WorldSize()
	resp := map[string]any{
		"status":  "running",
		"engine":  h.engine.Stats(),
		"agents":  h.bridge.Agents(),
		"running": h.engine.Running(),
		"world":   map[string]float64{"width": width, "height": height},
	}
	if h.process != nil {
		resp["process"] = h.process.Sample()
	}
	if h.clients != nil {
		resp["websocketClients"] = h.clients.ClientCount()
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	writeJSON(w, h.engine.Leaderboard(n))
}

func (h *routerHandlers) handleWeapons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Catalog().Weapons)
}

func (h *routerHandlers) handleObstacles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Catalog().Obstacles)
}

func (h *routerHandlers) handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID  string `json:"agent_id"`
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !mayActAs(r, req.AgentID) {
		writeError(w, "token does not cover this agent", http.StatusForbidden)
		return
	}

	reg, err := h.bridge.Register(req.AgentID, req.Username)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	if !reg.Existing {
		log.Printf("🤖 Agent %s registered via API from %s", reg.AgentID, GetClientIP(r))
	}
	if h.auth == nil {
		writeJSON(w, reg)
		return
	}

	token, err := h.auth.Issue(reg.AgentID, AgentTokenTTL)
	if err != nil {
		writeError(w, "could not issue agent token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		bridge.Registration
		Token string `json:"token"`
	}{reg, token})
}

func (h *routerHandlers) handleAgentCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string        `json:"agent_id"`
		Action  bridge.Action `json:"action"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		writeError(w, "agent_id is required", http.StatusBadRequest)
		return
	}
	if !mayActAs(r, req.AgentID) {
		writeError(w, "token does not cover this agent", http.StatusForbidden)
		return
	}

	res, err := h.bridge.Command(req.AgentID, req.Action)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (h *routerHandlers) handleAgentState(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if !mayActAs(r, agentID) {
		writeError(w, "token does not cover this agent", http.StatusForbidden)
		return
	}
	st, err := h.bridge.State(agentID)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"agent_id":   agentID,
		"game_state": st,
	})
}

func (h *routerHandlers) handleAgentRemove(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if !mayActAs(r, agentID) {
		writeError(w, "token does not cover this agent", http.StatusForbidden)
		return
	}
	if err := h.bridge.Remove(agentID); err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// writeBridgeError maps bridge sentinels onto status codes.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrInvalidAgentID):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, bridge.ErrUnknownAgent):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, bridge.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, bridge.ErrAgentLimit):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Printf("❌ Agent API error: %v", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
