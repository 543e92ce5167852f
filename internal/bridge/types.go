package bridge

import "strings"

// ToolType is a symbolic agent action.
type ToolType string

const (
	ToolMove    ToolType = "move"
	ToolAttack  ToolType = "attack"
	ToolCollect ToolType = "collect"
	ToolPlan    ToolType = "plan"
)

// toolAliases maps accepted tool names to canonical types. Decision
// services are language models, so a few obvious synonyms are tolerated.
var toolAliases = map[string]ToolType{
	// Move variants
	"move": ToolMove,
	"walk": ToolMove,
	"goto": ToolMove,

	// Attack variants
	"attack": ToolAttack,
	"shoot":  ToolAttack,
	"fight":  ToolAttack,

	// Collect variants
	"collect": ToolCollect,
	"pickup":  ToolCollect,
	"loot":    ToolCollect,

	// Plan variants
	"plan":  ToolPlan,
	"think": ToolPlan,
}

// ParseToolType returns the canonical tool for a name (case-insensitive).
func ParseToolType(name string) (ToolType, bool) {
	t, ok := toolAliases[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Action is one decision from the external service.
type Action struct {
	ToolType   string         `json:"tool_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Position is a world point.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Registration answers a register call.
type Registration struct {
	AgentID  string   `json:"agent_id"`
	EntityID uint32   `json:"entity_id"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
	Existing bool     `json:"existing"`
}

// CommandResult answers a command call. Success means the agent exists and
// the command was processed; Applied means it produced an input for the
// next tick.
type CommandResult struct {
	Success   bool        `json:"success"`
	Applied   bool        `json:"applied"`
	GameState *AgentState `json:"game_state,omitempty"`
}

// AgentState is the filtered world view an agent decides from.
type AgentState struct {
	AgentID    string         `json:"agent_id"`
	EntityID   uint32         `json:"entity_id"`
	Name       string         `json:"name"`
	Tick       uint64         `json:"tick"`
	Position   Position       `json:"position"`
	Rotation   float64        `json:"rotation"`
	Health     float64        `json:"health"`
	MaxHealth  float64        `json:"max_health"`
	Alive      bool           `json:"alive"`
	JustDied   bool           `json:"just_died"`
	Moving     bool           `json:"moving"`
	Inventory  []string       `json:"inventory"`
	Weapons    []WeaponInfo   `json:"weapons"`
	ActiveSlot int            `json:"active_slot"`
	Ammo       map[string]int `json:"ammo"`
	XP         int            `json:"xp"`
	Level      int            `json:"level"`
	Kills      int            `json:"kills"`
	Deaths     int            `json:"deaths"`
	Plan       string         `json:"plan,omitempty"`
	LastAction string         `json:"last_action,omitempty"`

	NearbyAgents    []NearbyCharacter `json:"nearby_agents"`
	NearbyLoot      []NearbyLoot      `json:"nearby_loot"`
	NearbyObstacles []NearbyObstacle  `json:"nearby_obstacles"`
}

// WeaponInfo describes one carried weapon.
type WeaponInfo struct {
	Slot      int    `json:"slot"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Melee     bool   `json:"melee"`
	Ammo      int    `json:"ammo"`
	Capacity  int    `json:"capacity"`
	Reloading bool   `json:"reloading"`
	Active    bool   `json:"active"`
}

// NearbyCharacter is another player or agent within detection range. ID is
// what an attack's target_player_id should name: the agent id for agents,
// the decimal entity id for human players.
type NearbyCharacter struct {
	ID        string   `json:"id"`
	EntityID  uint32   `json:"entity_id"`
	Name      string   `json:"name"`
	Agent     bool     `json:"agent"`
	Position  Position `json:"position"`
	Distance  float64  `json:"distance"`
	Health    float64  `json:"health"`
	MaxHealth float64  `json:"max_health"`
	Level     int      `json:"level"`
	Weapon    string   `json:"weapon,omitempty"`
}

// NearbyLoot is an item within detection range.
type NearbyLoot struct {
	EntityID uint32   `json:"entity_id"`
	Type     string   `json:"type"`
	Weapon   string   `json:"weapon,omitempty"`
	AmmoType string   `json:"ammo_type,omitempty"`
	Amount   int      `json:"amount"`
	Position Position `json:"position"`
	Distance float64  `json:"distance"`
}

// NearbyObstacle is an intact obstacle within detection range.
type NearbyObstacle struct {
	EntityID     uint32   `json:"entity_id"`
	Type         string   `json:"type"`
	Position     Position `json:"position"`
	Distance     float64  `json:"distance"`
	Health       float64  `json:"health"`
	Destructible bool     `json:"destructible"`
	Interactive  bool     `json:"interactive,omitempty"`
	Open         bool     `json:"open,omitempty"`
}
