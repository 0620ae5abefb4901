package world

import (
	"time"

	"github.com/annel0/descent/internal/vec"
)

// Session долговременная идентичность одного прохождения
type Session struct {
	ID               string     `json:"id"`
	Theme            Theme      `json:"theme"`
	Difficulty       Difficulty `json:"difficulty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastPlayed       time.Time  `json:"lastPlayed"`
	Score            int        `json:"score"`
	ExplorationDepth int        `json:"explorationDepth"`
}

// Now возвращает текущее время в UTC с точностью до миллисекунды:
// с такой точностью время хранится во всех бэкендах.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Touch обновляет время последней игры
func (s *Session) Touch() {
	s.LastPlayed = Now()
}

// Clone возвращает копию сессии
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// ActivePowerUp активное временное усиление
type ActivePowerUp struct {
	Type          string  `json:"type"`
	RemainingTime float64 `json:"remainingTime"`
}

// InventoryData сериализуемое состояние инвентаря и боевой раскладки
type InventoryData struct {
	UnlockedWeapons []string        `json:"unlockedWeapons"`
	PrimaryIndex    int             `json:"primaryIndex"`
	SecondaryIndex  int             `json:"secondaryIndex"`
	Ammo            map[string]int  `json:"ammo"`
	ActivePowerUps  []ActivePowerUp `json:"activePowerUps"`
}

// Clone возвращает глубокую копию данных инвентаря
func (d InventoryData) Clone() InventoryData {
	c := d
	// пустой срез остаётся пустым, а не nil: в JSON это [] против null
	if d.UnlockedWeapons != nil {
		c.UnlockedWeapons = make([]string, len(d.UnlockedWeapons))
		copy(c.UnlockedWeapons, d.UnlockedWeapons)
	}
	if d.ActivePowerUps != nil {
		c.ActivePowerUps = make([]ActivePowerUp, len(d.ActivePowerUps))
		copy(c.ActivePowerUps, d.ActivePowerUps)
	}
	if d.Ammo != nil {
		c.Ammo = make(map[string]int, len(d.Ammo))
		for k, v := range d.Ammo {
			c.Ammo[k] = v
		}
	}
	return c
}

// PlayerState состояние игрока, принадлежащее активной сессии
type PlayerState struct {
	Position      vec.Vec3      `json:"position"`
	Rotation      vec.Vec3      `json:"rotation"`
	Velocity      vec.Vec3      `json:"velocity"`
	Health        float64       `json:"health"`
	MaxHealth     float64       `json:"maxHealth"`
	Shields       float64       `json:"shields"`
	MaxShields    float64       `json:"maxShields"`
	Inventory     InventoryData `json:"inventory"`
	Score         int           `json:"score"`
	CurrentAreaID string        `json:"currentAreaId,omitempty"`
}

// Стартовые значения игрока
const (
	DefaultMaxHealth  = 100
	DefaultMaxShields = 100
	DefaultShields    = 50
)

// NewPlayerState создаёт игрока в центре стартовой зоны. Инвентарь
// заполняется вызывающей стороной (см. пакет combat).
func NewPlayerState(inv InventoryData) *PlayerState {
	return &PlayerState{
		Health:        DefaultMaxHealth,
		MaxHealth:     DefaultMaxHealth,
		Shields:       DefaultShields,
		MaxShields:    DefaultMaxShields,
		Inventory:     inv,
		CurrentAreaID: StartingAreaID,
	}
}

// Heading возвращает направление взгляда игрока
func (p *PlayerState) Heading() vec.Vec3 {
	return vec.HeadingFromRotation(p.Rotation)
}

// Alive сообщает, жив ли игрок
func (p *PlayerState) Alive() bool {
	return p.Health > 0
}

// Clone возвращает глубокую копию состояния игрока
func (p *PlayerState) Clone() *PlayerState {
	if p == nil {
		return nil
	}
	c := *p
	c.Inventory = p.Inventory.Clone()
	return &c
}
