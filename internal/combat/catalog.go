package combat

import (
	"github.com/annel0/descent/internal/vec"
	"github.com/annel0/descent/internal/world"
	"github.com/google/uuid"
)

// Category слот оружия
type Category string

const (
	Primary   Category = "primary"
	Secondary Category = "secondary"
)

// Идентификаторы оружия
const (
	WeaponLaser      = "laser"
	WeaponVulcan     = "vulcan"
	WeaponSpreadfire = "spreadfire"
	WeaponPlasma     = "plasma"
	WeaponFusion     = "fusion"
	WeaponConcussion = "concussion"
	WeaponHoming     = "homing"
	WeaponSmart      = "smart"
	WeaponMega       = "mega"
)

// BaseWeapon основное оружие с бесконечным боезапасом, есть всегда
const BaseWeapon = WeaponLaser

// Типы боеприпасов
const (
	AmmoVulcan     = "vulcan"
	AmmoConcussion = "concussion"
	AmmoHoming     = "homing"
	AmmoSmart      = "smart"
	AmmoMega       = "mega"
	AmmoEnergy     = "energy"
)

// Weapon запись каталога оружия
type Weapon struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	// AmmoType пустой у оружия с бесконечным боезапасом
	AmmoType        string  `json:"ammoType,omitempty"`
	AmmoPerShot     int     `json:"ammoPerShot"`
	Damage          float64 `json:"damage"`
	FireRate        float64 `json:"fireRate"` // выстрелов в секунду
	ProjectileSpeed float64 `json:"projectileSpeed"`
	Range           float64 `json:"range"`
}

// Infinite сообщает, расходует ли оружие боеприпасы
func (w Weapon) Infinite() bool {
	return w.AmmoType == ""
}

// NewProjectile создаёт снаряд выстрела из позиции pos по курсу rot
func (w Weapon) NewProjectile(ownerID string, pos, rot vec.Vec3, damageMultiplier float64) world.Projectile {
	return world.Projectile{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Weapon:   w.ID,
		Position: pos,
		Rotation: rot,
		Velocity: vec.HeadingFromRotation(rot).Scale(w.ProjectileSpeed),
		Damage:   w.Damage * damageMultiplier,
		Lifetime: w.Range / w.ProjectileSpeed,
	}
}

// Каталог в порядке слотов: индексы выбора считаются в этом порядке
var weapons = []Weapon{
	{ID: WeaponLaser, Name: "Laser Cannon", Category: Primary, Damage: 10, FireRate: 4, ProjectileSpeed: 120, Range: 240},
	{ID: WeaponVulcan, Name: "Vulcan Cannon", Category: Primary, AmmoType: AmmoVulcan, AmmoPerShot: 10, Damage: 6, FireRate: 12, ProjectileSpeed: 200, Range: 300},
	{ID: WeaponSpreadfire, Name: "Spreadfire Cannon", Category: Primary, AmmoType: AmmoEnergy, AmmoPerShot: 1, Damage: 8, FireRate: 5, ProjectileSpeed: 100, Range: 200},
	{ID: WeaponPlasma, Name: "Plasma Cannon", Category: Primary, AmmoType: AmmoEnergy, AmmoPerShot: 1, Damage: 14, FireRate: 8, ProjectileSpeed: 150, Range: 260},
	{ID: WeaponFusion, Name: "Fusion Cannon", Category: Primary, AmmoType: AmmoEnergy, AmmoPerShot: 4, Damage: 60, FireRate: 1, ProjectileSpeed: 110, Range: 220},
	{ID: WeaponConcussion, Name: "Concussion Missile", Category: Secondary, AmmoType: AmmoConcussion, AmmoPerShot: 1, Damage: 40, FireRate: 2, ProjectileSpeed: 80, Range: 320},
	{ID: WeaponHoming, Name: "Homing Missile", Category: Secondary, AmmoType: AmmoHoming, AmmoPerShot: 1, Damage: 40, FireRate: 2, ProjectileSpeed: 70, Range: 360},
	{ID: WeaponSmart, Name: "Smart Missile", Category: Secondary, AmmoType: AmmoSmart, AmmoPerShot: 1, Damage: 70, FireRate: 1, ProjectileSpeed: 60, Range: 300},
	{ID: WeaponMega, Name: "Mega Missile", Category: Secondary, AmmoType: AmmoMega, AmmoPerShot: 1, Damage: 200, FireRate: 0.5, ProjectileSpeed: 50, Range: 400},
}

var weaponIndex = func() map[string]Weapon {
	m := make(map[string]Weapon, len(weapons))
	for _, w := range weapons {
		m[w.ID] = w
	}
	return m
}()

// maxAmmo максимальный запас по типам
var maxAmmo = map[string]int{
	AmmoVulcan:     10000,
	AmmoConcussion: 20,
	AmmoHoming:     10,
	AmmoSmart:      5,
	AmmoMega:       5,
	AmmoEnergy:     200,
}

var ammoOrder = []string{AmmoVulcan, AmmoConcussion, AmmoHoming, AmmoSmart, AmmoMega, AmmoEnergy}

// Усиления
const (
	PowerUpQuadDamage      = "quad_damage"
	PowerUpInvulnerability = "invulnerability"
	PowerUpCloak           = "cloak"
)

// QuadDamageMultiplier множитель урона при активном quad_damage
const QuadDamageMultiplier = 4.0

// powerUpDurations длительность усилений, секунды
var powerUpDurations = map[string]float64{
	PowerUpQuadDamage:      30,
	PowerUpInvulnerability: 20,
	PowerUpCloak:           25,
}

// WeaponByID возвращает оружие из каталога
func WeaponByID(id string) (Weapon, bool) {
	w, ok := weaponIndex[id]
	return w, ok
}

// Catalog возвращает всё оружие в порядке слотов
func Catalog() []Weapon {
	out := make([]Weapon, len(weapons))
	copy(out, weapons)
	return out
}

// AmmoTypes возвращает известные типы боеприпасов
func AmmoTypes() []string {
	out := make([]string, len(ammoOrder))
	copy(out, ammoOrder)
	return out
}

// MaxAmmo максимальный запас типа; 0 для неизвестного типа
func MaxAmmo(ammoType string) int {
	return maxAmmo[ammoType]
}

// PowerUpDuration полная длительность усиления
func PowerUpDuration(powerUp string) (float64, bool) {
	d, ok := powerUpDurations[powerUp]
	return d, ok
}

// LootTable таблица добычи генератора зон, построенная по каталогу
func LootTable() world.LootTable {
	t := world.LootTable{AmmoTypes: AmmoTypes()}
	for _, w := range weapons {
		if w.ID != BaseWeapon {
			t.Weapons = append(t.Weapons, w.ID)
		}
	}
	return t
}
