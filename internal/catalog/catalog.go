// Package catalog holds the arena's static content: weapon and obstacle
// definitions, the starting loadout and the default map layout.
//
// A Catalog is loaded once at startup and is read-only afterwards, so it is
// safe to share between the simulation and the HTTP handlers.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid catalog")

// WeaponDef is the immutable description of a weapon type.
type WeaponDef struct {
	ID         string        `yaml:"id" json:"id"`
	Name       string        `yaml:"name" json:"name"`
	AmmoType   string        `yaml:"ammo_type" json:"ammoType,omitempty"`
	Capacity   int           `yaml:"capacity" json:"capacity"`
	FireDelay  time.Duration `yaml:"fire_delay" json:"-"`
	ReloadTime time.Duration `yaml:"reload_time" json:"-"`
	Damage     float64       `yaml:"damage" json:"damage"`
	Range      float64       `yaml:"range" json:"range"`
	Speed      float64       `yaml:"speed" json:"speed,omitempty"`
	Pellets    int           `yaml:"pellets" json:"pellets,omitempty"`
	Spread     float64       `yaml:"spread" json:"spread,omitempty"` // total fan angle across pellets
	Inaccuracy float64       `yaml:"inaccuracy" json:"inaccuracy"`    // max random offset per shot
	Melee      bool          `yaml:"melee" json:"melee"`
}

// ObstacleDef is the immutable description of an obstacle type.
type ObstacleDef struct {
	Type           string  `yaml:"type" json:"type"`
	Shape          string  `yaml:"shape" json:"shape"` // "circle" or "rect"
	Radius         float64 `yaml:"radius" json:"radius,omitempty"`
	Width          float64 `yaml:"width" json:"width,omitempty"`
	Height         float64 `yaml:"height" json:"height,omitempty"`
	Health         float64 `yaml:"health" json:"health"`
	Indestructible bool    `yaml:"indestructible" json:"indestructible"`
	Interactive    bool    `yaml:"interactive" json:"interactive"`
	XPOrbs         int     `yaml:"xp_orbs" json:"xpOrbs"`
	XPValue        int     `yaml:"xp_value" json:"xpValue"`
}

// Loadout is what a character carries on (re)spawn.
type Loadout struct {
	Weapons []string       `yaml:"weapons" json:"weapons"`
	Ammo    map[string]int `yaml:"ammo" json:"ammo"`
}

// ObstaclePlacement positions one obstacle on the map.
type ObstaclePlacement struct {
	Type     string  `yaml:"type"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
}

// LootPlacement positions one loot item on the map.
type LootPlacement struct {
	Type     string  `yaml:"type"` // weapon, ammo, health, xp_orb
	Weapon   string  `yaml:"weapon"`
	AmmoType string  `yaml:"ammo_type"`
	Amount   int     `yaml:"amount"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
}

// MapLayout is the initial population of a fresh world.
type MapLayout struct {
	Obstacles []ObstaclePlacement `yaml:"obstacles"`
	Loot      []LootPlacement     `yaml:"loot"`
}

// Catalog is the full set of static definitions.
type Catalog struct {
	Weapons   []WeaponDef   `yaml:"weapons"`
	Obstacles []ObstacleDef `yaml:"obstacles"`
	Loadout   Loadout       `yaml:"loadout"`
	Map       MapLayout     `yaml:"map"`

	weaponByID     map[string]*WeaponDef
	obstacleByType map[string]*ObstacleDef
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded definitions are broken: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.weaponByID = make(map[string]*WeaponDef, len(c.Weapons))
	for i := range c.Weapons {
		w := &c.Weapons[i]
		if w.ID == "" {
			return fmt.Errorf("%w: weapon #%d has no id", ErrInvalid, i)
		}
		if _, dup := c.weaponByID[w.ID]; dup {
			return fmt.Errorf("%w: duplicate weapon %q", ErrInvalid, w.ID)
		}
		if !w.Melee {
			if w.Capacity <= 0 || w.AmmoType == "" || w.Speed <= 0 {
				return fmt.Errorf("%w: ranged weapon %q needs capacity, ammo_type and speed", ErrInvalid, w.ID)
			}
			if w.Pellets < 1 {
				w.Pellets = 1
			}
		}
		if w.Range <= 0 {
			return fmt.Errorf("%w: weapon %q needs a positive range", ErrInvalid, w.ID)
		}
		c.weaponByID[w.ID] = w
	}

	c.obstacleByType = make(map[string]*ObstacleDef, len(c.Obstacles))
	for i := range c.Obstacles {
		o := &c.Obstacles[i]
		switch o.Shape {
		case "circle":
			if o.Radius <= 0 {
				return fmt.Errorf("%w: obstacle %q needs a radius", ErrInvalid, o.Type)
			}
		case "rect":
			if o.Width <= 0 || o.Height <= 0 {
				return fmt.Errorf("%w: obstacle %q needs width and height", ErrInvalid, o.Type)
			}
		default:
			return fmt.Errorf("%w: obstacle %q has unknown shape %q", ErrInvalid, o.Type, o.Shape)
		}
		if !o.Indestructible && o.Health <= 0 {
			return fmt.Errorf("%w: destructible obstacle %q needs health", ErrInvalid, o.Type)
		}
		c.obstacleByType[o.Type] = o
	}

	for _, id := range c.Loadout.Weapons {
		if _, ok := c.weaponByID[id]; !ok {
			return fmt.Errorf("%w: loadout references unknown weapon %q", ErrInvalid, id)
		}
	}
	if len(c.Loadout.Weapons) > 2 {
		return fmt.Errorf("%w: loadout has %d weapons, characters carry two", ErrInvalid, len(c.Loadout.Weapons))
	}
	for _, p := range c.Map.Obstacles {
		if _, ok := c.obstacleByType[p.Type]; !ok {
			return fmt.Errorf("%w: map places unknown obstacle %q", ErrInvalid, p.Type)
		}
	}
	for _, l := range c.Map.Loot {
		if l.Type == "weapon" {
			if _, ok := c.weaponByID[l.Weapon]; !ok {
				return fmt.Errorf("%w: map places unknown weapon %q", ErrInvalid, l.Weapon)
			}
		}
	}
	return nil
}

// Weapon looks up a weapon definition by ID.
func (c *Catalog) Weapon(id string) (*WeaponDef, bool) {
	w, ok := c.weaponByID[id]
	return w, ok
}

// Obstacle looks up an obstacle definition by type.
func (c *Catalog) Obstacle(typ string) (*ObstacleDef, bool) {
	o, ok := c.obstacleByType[typ]
	return o, ok
}
