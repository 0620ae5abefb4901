package world

import (
	"fmt"

	"github.com/annel0/descent/internal/vec"
)

// EnemyKind вид противника
type EnemyKind string

const (
	EnemyDrone    EnemyKind = "drone"
	EnemyHunter   EnemyKind = "hunter"
	EnemyTurret   EnemyKind = "sentry"
	EnemyBrood    EnemyKind = "brood"
	EnemyGuardian EnemyKind = "guardian"
)

// themeEnemies противники, характерные для каждой темы
var themeEnemies = map[Theme][]EnemyKind{
	ThemeAlienHive:    {EnemyBrood, EnemyHunter},
	ThemeSpaceStation: {EnemyDrone, EnemyTurret},
	ThemeAncientRuins: {EnemyGuardian, EnemyDrone},
}

// enemyHealth базовое здоровье по видам
var enemyHealth = map[EnemyKind]float64{
	EnemyDrone:    30,
	EnemyHunter:   60,
	EnemyTurret:   80,
	EnemyBrood:    20,
	EnemyGuardian: 150,
}

// AIState состояние конечного автомата противника
type AIState string

const (
	AIIdle   AIState = "idle"
	AIPatrol AIState = "patrol"
	AIAlert  AIState = "alert"
	AIAttack AIState = "attack"
	AIDead   AIState = "dead"
)

// Enemy временная боевая сущность. Не сохраняется: генератор создаёт
// противников заново, и после перезагрузки их не ожидают.
type Enemy struct {
	ID        string    `json:"id"`
	Kind      EnemyKind `json:"kind"`
	AreaID    string    `json:"areaId"`
	Position  vec.Vec3  `json:"position"`
	Rotation  vec.Vec3  `json:"rotation"`
	Velocity  vec.Vec3  `json:"velocity"`
	Health    float64   `json:"health"`
	MaxHealth float64   `json:"maxHealth"`
	AIState   AIState   `json:"aiState"`
	// Cooldown время до следующего выстрела, секунды
	Cooldown float64 `json:"cooldown"`
}

// Alive сообщает, жив ли противник
func (e *Enemy) Alive() bool {
	return e.AIState != AIDead && e.Health > 0
}

// Projectile снаряд в полёте
type Projectile struct {
	ID       string   `json:"id"`
	OwnerID  string   `json:"ownerId"`
	Weapon   string   `json:"weapon"`
	Position vec.Vec3 `json:"position"`
	Rotation vec.Vec3 `json:"rotation"`
	Velocity vec.Vec3 `json:"velocity"`
	Damage   float64  `json:"damage"`
	// Lifetime оставшееся время жизни, секунды
	Lifetime float64 `json:"lifetime"`
}

// Step сдвигает снаряд на dt и уменьшает время жизни.
// Возвращает false, когда снаряд должен быть удалён.
func (p *Projectile) Step(dt float64) bool {
	p.Position = p.Position.Add(p.Velocity.Scale(dt))
	p.Lifetime -= dt
	return p.Lifetime > 0
}

// PickupKind вид подбираемого предмета
type PickupKind string

const (
	PickupHealth          PickupKind = "health"
	PickupShield          PickupKind = "shield"
	PickupAmmo            PickupKind = "ammo"
	PickupWeapon          PickupKind = "weapon"
	PickupQuadDamage      PickupKind = "quad_damage"
	PickupInvulnerability PickupKind = "invulnerability"
	PickupCloak           PickupKind = "cloak"
)

// Pickup подбираемый предмет в зоне
type Pickup struct {
	ID       string     `json:"id"`
	Kind     PickupKind `json:"kind"`
	AreaID   string     `json:"areaId"`
	Position vec.Vec3   `json:"position"`
	Amount   int        `json:"amount,omitempty"`
	// Item уточнение: тип боеприпаса или id оружия
	Item string `json:"item,omitempty"`
}

// GenerationContext снимок состояния игрока, влияющий на наполнение новой зоны
type GenerationContext struct {
	PlayerHealth     float64  `json:"playerHealth"`
	RecentCombat     bool     `json:"recentCombat"`
	ExplorationDepth int      `json:"explorationDepth"`
	VisitedAreaTypes []string `json:"visitedAreaTypes"`
}

// Validate проверяет входные ограничения контекста
func (c GenerationContext) Validate() error {
	if c.PlayerHealth < 0 {
		return fmt.Errorf("playerHealth must be >= 0, got %v", c.PlayerHealth)
	}
	if c.ExplorationDepth < 0 {
		return fmt.Errorf("explorationDepth must be >= 0, got %d", c.ExplorationDepth)
	}
	return nil
}

// GenerationResult результат генерации зоны
type GenerationResult struct {
	Area        *Area       `json:"area"`
	Enemies     []Enemy     `json:"enemies"`
	PowerUps    []Pickup    `json:"powerUps"`
	Narrative   string      `json:"narrative,omitempty"`
	Connections []Direction `json:"connections"`
}
