// Package protocol defines the live-client wire format: the packet payloads
// and the codecs that frame them.
//
// Every frame is an envelope {type, data}. Clients send join, spectate,
// input and disconnect; the server sends welcome, update and disconnect.
package protocol

// PacketType names the payload carried by an envelope.
type PacketType string

const (
	TypeJoin       PacketType = "join"
	TypeSpectate   PacketType = "spectate"
	TypeInput      PacketType = "input"
	TypeDisconnect PacketType = "disconnect"
	TypeWelcome    PacketType = "welcome"
	TypeUpdate     PacketType = "update"
)

// MaxNameLength bounds display names in join packets.
const MaxNameLength = 24

// JoinPacket asks to enter the arena as a player. Sending it again after
// death respawns the player.
type JoinPacket struct {
	Name string `json:"name" msgpack:"name"`
}

// SpectatePacket asks to watch without a character.
type SpectatePacket struct {
	Name string `json:"name" msgpack:"name"`
}

// InputPacket is a client's control state. Aim is a world-space point.
type InputPacket struct {
	Seq          uint32  `json:"seq" msgpack:"seq"`
	Up           bool    `json:"up" msgpack:"up"`
	Down         bool    `json:"down" msgpack:"down"`
	Left         bool    `json:"left" msgpack:"left"`
	Right        bool    `json:"right" msgpack:"right"`
	AimX         float64 `json:"aimX" msgpack:"aimX"`
	AimY         float64 `json:"aimY" msgpack:"aimY"`
	Attacking    bool    `json:"attacking" msgpack:"attacking"`
	SwitchWeapon bool    `json:"switchWeapon" msgpack:"switchWeapon"`
	Pickup       bool    `json:"pickup" msgpack:"pickup"`
	Reload       bool    `json:"reload" msgpack:"reload"`
	Interact     bool    `json:"interact" msgpack:"interact"`
}

// DisconnectPacket ends a session from either side.
type DisconnectPacket struct {
	Reason string `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// WelcomePacket answers a join or spectate.
type WelcomePacket struct {
	ID          uint32  `json:"id" msgpack:"id"`
	Spectator   bool    `json:"spectator" msgpack:"spectator"`
	WorldWidth  float64 `json:"worldWidth" msgpack:"worldWidth"`
	WorldHeight float64 `json:"worldHeight" msgpack:"worldHeight"`
	TickRate    int     `json:"tickRate" msgpack:"tickRate"`
}

// UpdatePacket is the per-tick world state sent to each connection. Players
// get their Self block; spectators get Spectator=true instead.
type UpdatePacket struct {
	Tick      uint64          `json:"tick" msgpack:"tick"`
	Players   []PlayerState   `json:"players" msgpack:"players"`
	Bullets   []BulletState   `json:"bullets" msgpack:"bullets"`
	Obstacles []ObstacleState `json:"obstacles" msgpack:"obstacles"`
	Loot      []LootState     `json:"loot" msgpack:"loot"`
	Self      *PrivateState   `json:"self,omitempty" msgpack:"self,omitempty"`
	Spectator bool            `json:"spectator,omitempty" msgpack:"spectator,omitempty"`
}

// PlayerState is the public view of a character.
type PlayerState struct {
	ID        uint32  `json:"id" msgpack:"id"`
	Name      string  `json:"name" msgpack:"name"`
	X         float64 `json:"x" msgpack:"x"`
	Y         float64 `json:"y" msgpack:"y"`
	Rotation  float64 `json:"rotation" msgpack:"rotation"`
	Health    float64 `json:"health" msgpack:"health"`
	MaxHealth float64 `json:"maxHealth" msgpack:"maxHealth"`
	Alive     bool    `json:"alive" msgpack:"alive"`
	Agent     bool    `json:"agent" msgpack:"agent"`
	Weapon    string  `json:"weapon" msgpack:"weapon"`
	Attacking bool    `json:"attacking" msgpack:"attacking"`
	Level     int     `json:"level" msgpack:"level"`
	Kills     int     `json:"kills" msgpack:"kills"`
}

// BulletState is the public view of a bullet.
type BulletState struct {
	ID        uint32  `json:"id" msgpack:"id"`
	X         float64 `json:"x" msgpack:"x"`
	Y         float64 `json:"y" msgpack:"y"`
	Rotation  float64 `json:"rotation" msgpack:"rotation"`
	ShooterID uint32  `json:"shooterId" msgpack:"shooterId"`
}

// ObstacleState is the public view of an obstacle.
type ObstacleState struct {
	ID        uint32  `json:"id" msgpack:"id"`
	Type      string  `json:"type" msgpack:"type"`
	X         float64 `json:"x" msgpack:"x"`
	Y         float64 `json:"y" msgpack:"y"`
	Rotation  float64 `json:"rotation" msgpack:"rotation"`
	Health    float64 `json:"health" msgpack:"health"`
	Destroyed bool    `json:"destroyed" msgpack:"destroyed"`
	Open      bool    `json:"open,omitempty" msgpack:"open,omitempty"`
}

// LootState is the public view of a loot item.
type LootState struct {
	ID       uint32  `json:"id" msgpack:"id"`
	Type     string  `json:"type" msgpack:"type"`
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	Weapon   string  `json:"weapon,omitempty" msgpack:"weapon,omitempty"`
	AmmoType string  `json:"ammoType,omitempty" msgpack:"ammoType,omitempty"`
	Amount   int     `json:"amount,omitempty" msgpack:"amount,omitempty"`
}

// WeaponSlot is one inventory slot in the private block.
type WeaponSlot struct {
	ID        string `json:"id" msgpack:"id"`
	Ammo      int    `json:"ammo" msgpack:"ammo"`
	Capacity  int    `json:"capacity" msgpack:"capacity"`
	Reloading bool   `json:"reloading" msgpack:"reloading"`
}

// PrivateState is sent only to the character's own connection.
type PrivateState struct {
	ID         uint32         `json:"id" msgpack:"id"`
	Slots      [2]*WeaponSlot `json:"slots" msgpack:"slots"`
	ActiveSlot int            `json:"activeSlot" msgpack:"activeSlot"`
	Ammo       map[string]int `json:"ammo" msgpack:"ammo"`
	XP         int            `json:"xp" msgpack:"xp"`
	Level      int            `json:"level" msgpack:"level"`
	Kills      int            `json:"kills" msgpack:"kills"`
	Deaths     int            `json:"deaths" msgpack:"deaths"`
}
