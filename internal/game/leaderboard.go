package game

import (
	"cmp"
	"slices"
)

// LeaderboardEntry is one ranked character.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	ID     uint32 `json:"id"`
	Name   string `json:"name"`
	Agent  bool   `json:"agent"`
	Kills  int    `json:"kills"`
	Deaths int    `json:"deaths"`
	XP     int    `json:"xp"`
	Level  int    `json:"level"`
	Alive  bool   `json:"alive"`
}

// Leaderboard ranks every connected character by kills, then XP, then ID.
// Dead characters stay ranked because kills survive respawn. n <= 0
// returns everyone.
func (w *World) Leaderboard(n int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(w.characters))
	for _, c := range w.characters {
		entries = append(entries, LeaderboardEntry{
			ID:     uint32(c.ID),
			Name:   c.Name,
			Agent:  c.IsAgent(),
			Kills:  c.Kills,
			Deaths: c.Deaths,
			XP:     c.XP,
			Level:  c.Level(),
			Alive:  c.Alive,
		})
	}
	slices.SortFunc(entries, func(a, b LeaderboardEntry) int {
		if c := cmp.Compare(b.Kills, a.Kills); c != 0 {
			return c
		}
		if c := cmp.Compare(b.XP, a.XP); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Leaderboard returns the current top n.
func (e *Engine) Leaderboard(n int) []LeaderboardEntry {
	var out []LeaderboardEntry
	e.WithWorld(func(w *World) { out = w.Leaderboard(n) })
	return out
}
