package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypePlayerJoin
	EventTypePlayerLeave
	EventTypeDamage
	EventTypeKill
	EventTypeRespawn
	EventTypePickup
	EventTypeObstacleDestroyed
	EventTypeAgentCommand
)

// EventVersion is bumped whenever a payload changes shape.
const EventVersion uint8 = 2

// Event is one line of the audit log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	TickNum   uint64          `json:"tickNum"`
	SourceID  EntityID        `json:"sourceId"` // entity the event is rate limited under
	Payload   json.RawMessage `json:"payload"`
}

// EventSink receives simulation events. EventLog implements it.
type EventSink interface {
	EmitSimple(eventType EventType, tickNum uint64, source EntityID, payload any) bool
}

type discardEvents struct{}

func (discardEvents) EmitSimple(EventType, uint64, EntityID, any) bool { return false }

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypePlayerJoin:
		return "player_join"
	case EventTypePlayerLeave:
		return "player_leave"
	case EventTypeDamage:
		return "damage"
	case EventTypeKill:
		return "kill"
	case EventTypeRespawn:
		return "respawn"
	case EventTypePickup:
		return "pickup"
	case EventTypeObstacleDestroyed:
		return "obstacle_destroyed"
	case EventTypeAgentCommand:
		return "agent_command"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the type by name so the log is greppable.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// DamagePayload contains damage event details
type DamagePayload struct {
	AttackerID   uint32  `json:"attackerId"`
	VictimID     uint32  `json:"victimId"`
	Damage       float64 `json:"damage"`
	VictimHealth float64 `json:"victimHealth"`
	WeaponID     string  `json:"weaponId"`
}

// KillPayload contains kill event details
type KillPayload struct {
	KillerID     uint32 `json:"killerId"`
	VictimID     uint32 `json:"victimId"`
	KillerKills  int    `json:"killerKills"`
	VictimDeaths int    `json:"victimDeaths"`
}

// PlayerJoinPayload contains player join details
type PlayerJoinPayload struct {
	PlayerID   uint32  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	Agent      bool    `json:"agent"`
	SpawnX     float64 `json:"spawnX"`
	SpawnY     float64 `json:"spawnY"`
}

// PlayerLeavePayload is emitted when a character is removed.
type PlayerLeavePayload struct {
	PlayerID uint32 `json:"playerId"`
	Kills    int    `json:"kills"`
}

// RespawnPayload contains respawn event details
type RespawnPayload struct {
	PlayerID uint32  `json:"playerId"`
	SpawnX   float64 `json:"spawnX"`
	SpawnY   float64 `json:"spawnY"`
}

// PickupPayload records a loot pickup.
type PickupPayload struct {
	PlayerID uint32 `json:"playerId"`
	LootType string `json:"lootType"`
	Amount   int    `json:"amount"`
}

// ObstaclePayload records an obstacle's destruction.
type ObstaclePayload struct {
	ObstacleID  uint32 `json:"obstacleId"`
	Type        string `json:"type"`
	DestroyedBy uint32 `json:"destroyedBy"`
	Orbs        int    `json:"orbs"`
}

// AgentCommandPayload records a bridge command.
type AgentCommandPayload struct {
	AgentID string `json:"agentId"`
	Action  string `json:"action"`
	Applied bool   `json:"applied"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, source EntityID, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		SourceID:  source,
		Payload:   EncodePayload(payload),
	}
}
