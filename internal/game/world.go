package game

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"slices"
	"time"

	"agent-arena/internal/catalog"
	"agent-arena/internal/game/geom"
	"agent-arena/internal/game/spatial"
)

var (
	ErrWorldFull       = errors.New("world is full")
	ErrUnknownWeapon   = errors.New("unknown weapon")
	ErrUnknownObstacle = errors.New("unknown obstacle type")
)

// WorldConfig holds the simulation's tunables.
type WorldConfig struct {
	Width             float64
	Height            float64
	CellSize          float64
	TickInterval      time.Duration
	CharacterRadius   float64
	BaseHealth        float64
	BaseSpeed         float64 // units per second at level 0
	PickupRadius      float64 // reach beyond the character's own radius
	InteractRadius    float64
	OrbRadius         float64
	PushBackDistance  float64
	InterpSpeed       float64 // units per second for bridge moves
	MinInterpDuration time.Duration
	RespawnDelay      time.Duration // agents only
	Limits            ResourceLimits
	Seed              int64
}

// DefaultWorldConfig returns a 2000×1600 arena ticking at 40 TPS.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Width:             2000,
		Height:            1600,
		CellSize:          200,
		TickInterval:      25 * time.Millisecond,
		CharacterRadius:   20,
		BaseHealth:        100,
		BaseSpeed:         220,
		PickupRadius:      30,
		InteractRadius:    90,
		OrbRadius:         8,
		PushBackDistance:  12,
		InterpSpeed:       300,
		MinInterpDuration: 150 * time.Millisecond,
		RespawnDelay:      3 * time.Second,
		Limits:            DefaultLimits(),
		Seed:              time.Now().UnixNano(),
	}
}

// World is the authoritative arena state. It is not safe for concurrent
// use: Engine serializes access, and everything inside Step runs on one
// goroutine.
type World struct {
	cfg     WorldConfig
	catalog *catalog.Catalog
	events  EventSink
	rng     *rand.Rand
	grid    *spatial.SpatialGrid
	bounds  geom.AABB

	nextID EntityID
	tick   uint64
	now    time.Time

	kinds        map[EntityID]EntityKind
	characters   []*Character // ascending ID
	charByID     map[EntityID]*Character
	obstacles    []*Obstacle
	obstacleByID map[EntityID]*Obstacle
	loot         []*Loot
	lootByID     map[EntityID]*Loot
	bullets      []*Bullet

	removals  []EntityID
	meleeHits []meleeHit
}

// NewWorld creates an empty world. events may be nil.
func NewWorld(cfg WorldConfig, cat *catalog.Catalog, events EventSink) *World {
	if cat == nil {
		cat = catalog.Default()
	}
	if events == nil {
		events = discardEvents{}
	}
	maxEntities := cfg.Limits.MaxCharacters + cfg.Limits.MaxLoot + len(cat.Map.Obstacles)
	return &World{
		cfg:          cfg,
		catalog:      cat,
		events:       events,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		grid:         spatial.NewSpatialGrid(cfg.Width, cfg.Height, cfg.CellSize, maxEntities),
		bounds:       geom.AABB{Max: geom.V(cfg.Width, cfg.Height)},
		kinds:        make(map[EntityID]EntityKind),
		charByID:     make(map[EntityID]*Character),
		obstacleByID: make(map[EntityID]*Obstacle),
		lootByID:     make(map[EntityID]*Loot),
	}
}

func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) Catalog() *catalog.Catalog { return w.catalog }
func (w *World) Tick() uint64 { return w.tick }
func (w *World) Now() time.Time { return w.now }
func (w *World) Characters() []*Character { return w.characters }
func (w *World) Obstacles() []*Obstacle { return w.obstacles }
func (w *World) LootItems() []*Loot { return w.loot }
func (w *World) Bullets() []*Bullet { return w.bullets }
func (w *World) KindOf(id EntityID) EntityKind { return w.kinds[id] }

// Character returns the character with id, or nil.
func (w *World) Character(id EntityID) *Character { return w.charByID[id] }

// Obstacle returns the obstacle with id, or nil.
func (w *World) Obstacle(id EntityID) *Obstacle { return w.obstacleByID[id] }

// LootByID returns the loot item with id, or nil.
func (w *World) LootByID(id EntityID) *Loot { return w.lootByID[id] }

// Emit records an event against the current tick.
func (w *World) Emit(t EventType, source EntityID, payload any) {
	w.events.EmitSimple(t, w.tick, source, payload)
}

func (w *World) allocID() EntityID {
	w.nextID++
	return w.nextID
}

// PopulateMap places the catalog's map layout.
func (w *World) PopulateMap() error {
	for _, p := range w.catalog.Map.Obstacles {
		if _, err := w.SpawnObstacle(p.Type, geom.V(p.X, p.Y), p.Rotation); err != nil {
			return err
		}
	}
	for _, l := range w.catalog.Map.Loot {
		pos := geom.V(l.X, l.Y)
		switch LootType(l.Type) {
		case LootWeapon:
			def, ok := w.catalog.Weapon(l.Weapon)
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownWeapon, l.Weapon)
			}
			amount := l.Amount
			if amount <= 0 {
				amount = def.Capacity
			}
			w.SpawnWeaponLoot(def.ID, amount, pos)
		case LootAmmo:
			w.SpawnAmmoLoot(l.AmmoType, l.Amount, pos)
		case LootHealth:
			w.spawnLoot(LootHealth, pos).Amount = l.Amount
		case LootXPOrb:
			w.SpawnXPOrb(l.Amount, pos)
		default:
			log.Printf("⚠️ Unknown loot type in map: %q", l.Type)
		}
	}
	return nil
}

// SpawnCharacter adds a character at a random free position.
func (w *World) SpawnCharacter(name string, mode ControlMode) (*Character, error) {
	return w.spawnCharacter(name, mode, nil)
}

// SpawnCharacterAt adds a character at pos without checking for overlap.
func (w *World) SpawnCharacterAt(name string, mode ControlMode, pos geom.Vec2) (*Character, error) {
	return w.spawnCharacter(name, mode, &pos)
}

func (w *World) spawnCharacter(name string, mode ControlMode, at *geom.Vec2) (*Character, error) {
	if len(w.characters) >= w.cfg.Limits.MaxCharacters {
		return nil, ErrWorldFull
	}
	c := &Character{
		Body:       Body{ID: w.allocID(), Hitbox: geom.Circle(geom.Vec2{}, w.cfg.CharacterRadius), Alive: true},
		Name:       name,
		Control:    mode,
		Ammo:       make(map[string]int),
		baseHealth: w.cfg.BaseHealth,
		baseSpeed:  w.cfg.BaseSpeed,
	}
	w.equipLoadout(c)
	c.Health = c.MaxHealth()
	if at != nil {
		c.SetPosition(w.clampToWorld(*at, c.Hitbox.Radius))
	} else {
		c.SetPosition(w.findSpawn(c.Hitbox))
	}

	w.kinds[c.ID] = KindCharacter
	w.characters = append(w.characters, c)
	w.charByID[c.ID] = c
	w.grid.Insert(uint32(c.ID), c.Hitbox.Bounds())

	w.events.EmitSimple(EventTypePlayerJoin, w.tick, c.ID, PlayerJoinPayload{
		PlayerID: uint32(c.ID), PlayerName: name, Agent: mode == ControlAgent, SpawnX: c.Pos.X, SpawnY: c.Pos.Y,
	})
	return c, nil
}

func (w *World) equipLoadout(c *Character) {
	c.Weapons = [2]*Weapon{}
	c.ActiveSlot = 0
	clear(c.Ammo)
	for i, id := range w.catalog.Loadout.Weapons {
		if def, ok := w.catalog.Weapon(id); ok && i < len(c.Weapons) {
			c.Weapons[i] = NewWeapon(def)
		}
	}
	for t, n := range w.catalog.Loadout.Ammo {
		c.Ammo[t] = n
	}
}

// findSpawn picks a random position where h overlaps nothing solid,
// falling back to the last candidate after a bounded number of tries.
func (w *World) findSpawn(h geom.Hitbox) geom.Vec2 {
	margin := math.Max(h.Radius, 1) * 2
	var p geom.Vec2
	for range 64 {
		p = geom.V(
			margin+w.rng.Float64()*(w.cfg.Width-2*margin),
			margin+w.rng.Float64()*(w.cfg.Height-2*margin),
		)
		if !w.blocked(h.At(p), 0) {
			break
		}
	}
	return p
}

// GiveWeapon puts a fresh weapon into the first empty slot, or replaces
// the active one, and adds reserve rounds of its ammo type.
func (w *World) GiveWeapon(c *Character, weaponID string, reserve int) (*Weapon, error) {
	def, ok := w.catalog.Weapon(weaponID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeapon, weaponID)
	}
	wpn := NewWeapon(def)
	slot := c.ActiveSlot
	for i, existing := range c.Weapons {
		if existing == nil {
			slot = i
			break
		}
	}
	c.Weapons[slot] = wpn
	c.ActiveSlot = slot
	if def.AmmoType != "" && reserve > 0 {
		c.Ammo[def.AmmoType] += reserve
	}
	return wpn, nil
}

// SpawnObstacle places an obstacle of a catalog type.
func (w *World) SpawnObstacle(typ string, pos geom.Vec2, rotation float64) (*Obstacle, error) {
	def, ok := w.catalog.Obstacle(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObstacle, typ)
	}
	o := newObstacle(w.allocID(), def, pos, rotation)
	w.kinds[o.ID] = KindObstacle
	w.obstacles = append(w.obstacles, o)
	w.obstacleByID[o.ID] = o
	w.grid.Insert(uint32(o.ID), o.Hitbox.Bounds())
	return o, nil
}

func (w *World) spawnLoot(typ LootType, pos geom.Vec2) *Loot {
	l := newLoot(w.allocID(), typ, w.clampToWorld(pos, w.cfg.OrbRadius), w.cfg.OrbRadius)
	w.kinds[l.ID] = KindLoot
	w.loot = append(w.loot, l)
	w.lootByID[l.ID] = l
	w.grid.Insert(uint32(l.ID), l.Hitbox.Bounds())
	return l
}

// SpawnXPOrb drops an XP orb worth value.
func (w *World) SpawnXPOrb(value int, pos geom.Vec2) *Loot {
	l := w.spawnLoot(LootXPOrb, pos)
	l.Amount = value
	return l
}

// SpawnAmmoLoot drops amount rounds of ammoType.
func (w *World) SpawnAmmoLoot(ammoType string, amount int, pos geom.Vec2) *Loot {
	l := w.spawnLoot(LootAmmo, pos)
	l.AmmoType = ammoType
	l.Amount = amount
	return l
}

// SpawnWeaponLoot drops a weapon holding magazine rounds.
func (w *World) SpawnWeaponLoot(weaponID string, magazine int, pos geom.Vec2) *Loot {
	l := w.spawnLoot(LootWeapon, pos)
	l.WeaponID = weaponID
	l.Amount = magazine
	return l
}

func (w *World) removeLoot(l *Loot) {
	l.Alive = false
	delete(w.lootByID, l.ID)
	delete(w.kinds, l.ID)
	w.grid.Remove(uint32(l.ID))
	w.loot = slices.DeleteFunc(w.loot, func(x *Loot) bool { return x == l })
}

// QueueRemoval schedules a character for removal at the start of the next
// tick. Used for client disconnects.
func (w *World) QueueRemoval(id EntityID) {
	w.removals = append(w.removals, id)
}

// RemoveCharacter deletes a character and unindexes it immediately. Bullets
// it already fired keep flying.
func (w *World) RemoveCharacter(id EntityID) bool {
	c, ok := w.charByID[id]
	if !ok {
		return false
	}
	c.Alive = false
	delete(w.charByID, id)
	delete(w.kinds, id)
	w.grid.Remove(uint32(id))
	w.characters = slices.DeleteFunc(w.characters, func(x *Character) bool { return x == c })
	w.events.EmitSimple(EventTypePlayerLeave, w.tick, id, PlayerLeavePayload{PlayerID: uint32(id), Kills: c.Kills})
	return true
}

func (w *World) applyRemovals() {
	for _, id := range w.removals {
		w.RemoveCharacter(id)
	}
	w.removals = w.removals[:0]
}

// Respawn revives a dead character at a free position with a fresh
// loadout, zero XP and full health. Kills are kept.
func (w *World) Respawn(id EntityID) bool {
	c, ok := w.charByID[id]
	if !ok || c.Alive {
		return false
	}
	c.XP = 0
	w.equipLoadout(c)
	c.Health = c.MaxHealth()
	c.Alive = true
	c.Attacking = false
	c.input = Input{}
	c.interp = nil
	c.Rotation = 0
	w.setCharacterPos(c, w.findSpawn(c.Hitbox))
	w.events.EmitSimple(EventTypeRespawn, w.tick, c.ID, RespawnPayload{PlayerID: uint32(c.ID), SpawnX: c.Pos.X, SpawnY: c.Pos.Y})
	return true
}

// Step advances the simulation by one tick:
//
//  1. queued removals, then buffered inputs (latest per entity)
//  2. weapon reload timers and agent respawns
//  3. attacks for every live character, then movement, pickups and
//     interactions
//  4. bullets
//  5. interpolated agent moves
func (w *World) Step(now time.Time, inputs map[EntityID]Input) {
	w.tick++
	w.now = now
	dt := w.cfg.TickInterval.Seconds()

	w.applyRemovals()
	w.applyInputs(now, inputs)
	w.updateTimers(now)

	for _, c := range w.characters {
		if c.Alive {
			w.attack(c, now)
		}
	}
	w.applyMeleeHits()

	for _, c := range w.characters {
		if !c.Alive {
			continue
		}
		if c.interp == nil {
			w.moveCharacter(c, dt)
		}
		w.collectLoot(c)
		if c.wantInteract {
			w.interact(c)
		}
		c.wantPickup = false
		c.wantInteract = false
	}

	w.updateBullets(dt)
	w.updateInterpolations(now)
}

func (w *World) applyInputs(now time.Time, inputs map[EntityID]Input) {
	if len(inputs) == 0 {
		return
	}
	ids := make([]EntityID, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		c := w.charByID[id]
		if c == nil || !c.Alive {
			continue
		}
		in := inputs[id]
		if in.Seq != 0 {
			if in.Seq <= c.lastSeq {
				continue
			}
			c.lastSeq = in.Seq
		}
		w.applyInput(c, in, now)
	}
}

func (w *World) applyInput(c *Character, in Input, now time.Time) {
	if !in.Additive {
		held := in
		held.SwitchWeapon, held.Pickup, held.Reload, held.Interact = false, false, false, false
		held.MoveBy, held.Plan = nil, nil
		c.input = held
		c.Attacking = in.Attacking
	}

	if in.SwitchWeapon {
		c.SwitchWeapon()
	}
	if in.Reload {
		if wpn := c.ActiveWeapon(); wpn != nil {
			wpn.StartReload(now, c.Ammo[wpn.Def.AmmoType])
		}
	}
	if in.Pickup {
		c.wantPickup = true
	}
	if in.Interact {
		c.wantInteract = true
	}
	if in.Plan != nil {
		c.Plan = *in.Plan
	}
	if in.MoveBy != nil {
		w.startMove(c, *in.MoveBy, now)
	}
}

func (w *World) updateTimers(now time.Time) {
	for _, c := range w.characters {
		if !c.Alive {
			if c.IsAgent() && now.Sub(c.DiedAt) >= w.cfg.RespawnDelay {
				w.Respawn(c.ID)
			}
			continue
		}
		for _, wpn := range c.Weapons {
			if wpn == nil || !wpn.Reloading {
				continue
			}
			if n := wpn.UpdateReload(now, c.Ammo[wpn.Def.AmmoType]); n > 0 {
				c.Ammo[wpn.Def.AmmoType] -= n
			}
		}
	}
}

// faceAim turns c toward its held aim point, if any.
func (w *World) faceAim(c *Character) {
	if !c.input.HasAim {
		return
	}
	if to := c.input.Aim.Sub(c.Pos); !to.IsZero() {
		c.Rotation = to.Angle()
	}
}

// attack fires or swings the active weapon when the character is
// attacking. Pulling the trigger on an empty magazine starts a reload.
func (w *World) attack(c *Character, now time.Time) {
	w.faceAim(c)
	if !c.Attacking {
		return
	}
	wpn := c.ActiveWeapon()
	if wpn == nil {
		return
	}
	if wpn.Def.Melee {
		if wpn.Fire(now) {
			w.meleeAttack(c, wpn)
		}
		return
	}
	if wpn.Ammo <= 0 {
		wpn.StartReload(now, c.Ammo[wpn.Def.AmmoType])
		return
	}
	if wpn.Fire(now) {
		w.spawnBullets(c, wpn)
	}
}

func (w *World) spawnBullets(c *Character, wpn *Weapon) {
	def := wpn.Def
	damage := def.Damage * c.Multiplier()
	for _, angle := range PelletAngles(c.Rotation, def.Pellets, def.Spread, def.Inaccuracy, w.rng) {
		if len(w.bullets) >= w.cfg.Limits.MaxBullets {
			return
		}
		dir := geom.FromAngle(angle)
		w.bullets = append(w.bullets, &Bullet{
			ID:        w.allocID(),
			Pos:       c.Pos,
			Origin:    c.Pos,
			Dir:       dir,
			Rotation:  angle,
			Speed:     def.Speed,
			Damage:    damage,
			Range:     def.Range,
			ShooterID: c.ID,
			WeaponID:  def.ID,
			Alive:     true,
		})
	}
}

// collectLoot picks up XP orbs on contact and, when the pickup action is
// set, any other loot within reach. At most one weapon is taken per tick.
func (w *World) collectLoot(c *Character) {
	reach := c.Hitbox.Radius + w.cfg.PickupRadius
	candidates := slices.Clone(w.grid.QueryRadius(c.Pos.X, c.Pos.Y, reach+w.cfg.OrbRadius))
	tookWeapon := false
	for _, raw := range candidates {
		l := w.lootByID[EntityID(raw)]
		if l == nil || !l.Alive {
			continue
		}
		d := l.Pos.Dist(c.Pos)
		switch {
		case l.Type == LootXPOrb && d <= c.Hitbox.Radius+l.Hitbox.Radius:
		case c.wantPickup && d <= reach:
			if l.Type == LootWeapon && tookWeapon {
				continue
			}
		default:
			continue
		}
		if w.pickUp(c, l) {
			tookWeapon = tookWeapon || l.Type == LootWeapon
			w.removeLoot(l)
		}
	}
}

func (w *World) pickUp(c *Character, l *Loot) bool {
	switch l.Type {
	case LootXPOrb:
		c.addXP(l.Amount)
	case LootAmmo:
		c.Ammo[l.AmmoType] += l.Amount
	case LootHealth:
		if c.Health >= c.MaxHealth() {
			return false
		}
		c.Heal(float64(l.Amount))
	case LootWeapon:
		def, ok := w.catalog.Weapon(l.WeaponID)
		if !ok {
			return false
		}
		slot := -1
		for i, existing := range c.Weapons {
			if existing == nil {
				slot = i
				break
			}
		}
		if slot < 0 {
			slot = c.ActiveSlot
			old := c.Weapons[slot]
			old.CancelReload()
			w.SpawnWeaponLoot(old.Def.ID, old.Ammo, c.Pos)
		}
		c.Weapons[slot] = NewWeaponWithAmmo(def, l.Amount)
		c.ActiveSlot = slot
	default:
		return false
	}
	w.events.EmitSimple(EventTypePickup, w.tick, c.ID, PickupPayload{PlayerID: uint32(c.ID), LootType: string(l.Type), Amount: l.Amount})
	return true
}

// interact toggles the nearest interactive obstacle within reach. A gate
// will not close on top of a character.
func (w *World) interact(c *Character) {
	var nearest *Obstacle
	best := math.Inf(1)
	for _, raw := range w.grid.QueryRadius(c.Pos.X, c.Pos.Y, w.cfg.InteractRadius) {
		o := w.obstacleByID[EntityID(raw)]
		if o == nil || !o.Alive || !o.Def.Interactive {
			continue
		}
		if d := o.Pos.Dist(c.Pos); d <= w.cfg.InteractRadius && d < best {
			nearest, best = o, d
		}
	}
	if nearest == nil {
		return
	}
	if nearest.Open {
		for _, other := range w.characters {
			if other.Alive && geom.Overlaps(nearest.Hitbox, other.Hitbox) {
				return
			}
		}
	}
	nearest.Toggle()
}

// damageCharacter applies damage with attribution and records the outcome.
func (w *World) damageCharacter(victim *Character, amount float64, attacker *Character, weaponID string) {
	if victim == nil || !victim.Alive {
		return
	}
	killed := victim.TakeDamage(amount, attacker, w.now)

	var attackerID EntityID
	if attacker != nil {
		attackerID = attacker.ID
	}
	w.events.EmitSimple(EventTypeDamage, w.tick, attackerID, DamagePayload{
		AttackerID: uint32(attackerID), VictimID: uint32(victim.ID), Damage: amount, VictimHealth: victim.Health, WeaponID: weaponID,
	})
	if !killed {
		return
	}
	killer := "the arena"
	kills := 0
	if attacker != nil && attacker != victim {
		killer = attacker.Name
		kills = attacker.Kills
	}
	log.Printf("💀 %s was killed by %s (%s)", victim.Name, killer, weaponID)
	w.events.EmitSimple(EventTypeKill, w.tick, attackerID, KillPayload{
		KillerID: uint32(attackerID), VictimID: uint32(victim.ID), KillerKills: kills, VictimDeaths: victim.Deaths,
	})
}

// damageObstacle applies damage and, on the destroying hit only, unindexes
// the obstacle and scatters its XP orbs.
func (w *World) damageObstacle(o *Obstacle, amount float64, source EntityID) {
	if o == nil || !o.TakeDamage(amount) {
		return
	}
	w.grid.Remove(uint32(o.ID))
	spread := math.Max(o.Hitbox.Radius, math.Max(o.Hitbox.HalfW, o.Hitbox.HalfH))
	for range o.Def.XPOrbs {
		offset := geom.FromAngle(w.rng.Float64() * 2 * math.Pi).Scale(w.rng.Float64() * spread)
		w.SpawnXPOrb(o.Def.XPValue, o.Pos.Add(offset))
	}
	log.Printf("🪓 %s #%d destroyed", o.Def.Type, o.ID)
	w.events.EmitSimple(EventTypeObstacleDestroyed, w.tick, source, ObstaclePayload{
		ObstacleID: uint32(o.ID), Type: o.Def.Type, DestroyedBy: uint32(source), Orbs: o.Def.XPOrbs,
	})
}

// QueryRadius returns IDs of characters, obstacles and loot whose centers
// lie within radius of center, in ascending ID order. Dead characters and
// destroyed obstacles are skipped.
func (w *World) QueryRadius(center geom.Vec2, radius float64) []EntityID {
	var out []EntityID
	for _, raw := range w.grid.QueryRadius(center.X, center.Y, radius) {
		id := EntityID(raw)
		var pos geom.Vec2
		switch w.kinds[id] {
		case KindCharacter:
			c := w.charByID[id]
			if !c.Alive {
				continue
			}
			pos = c.Pos
		case KindObstacle:
			o := w.obstacleByID[id]
			if !o.Alive {
				continue
			}
			pos = o.Pos
		case KindLoot:
			pos = w.lootByID[id].Pos
		default:
			continue
		}
		if pos.Dist(center) <= radius {
			out = append(out, id)
		}
	}
	return out
}

// QueryShape returns IDs of live entities whose hitbox overlaps h.
func (w *World) QueryShape(h geom.Hitbox) []EntityID {
	var out []EntityID
	for _, raw := range w.grid.Query(h.Bounds()) {
		id := EntityID(raw)
		var hb geom.Hitbox
		switch w.kinds[id] {
		case KindCharacter:
			c := w.charByID[id]
			if !c.Alive {
				continue
			}
			hb = c.Hitbox
		case KindObstacle:
			o := w.obstacleByID[id]
			if !o.Alive {
				continue
			}
			hb = o.Hitbox
		case KindLoot:
			hb = w.lootByID[id].Hitbox
		default:
			continue
		}
		if geom.Overlaps(h, hb) {
			out = append(out, id)
		}
	}
	return out
}
