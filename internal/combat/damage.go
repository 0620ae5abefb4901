package combat

import (
	"math"

	"github.com/annel0/descent/internal/world"
)

// ApplyDamage наносит урон игроку: щиты поглощают урон первыми,
// неуязвимость отменяет его полностью. Возвращает весь принятый урон:
// поглощённый щитами и снятый со здоровья.
func ApplyDamage(ps *world.PlayerState, inv *Inventory, amount float64) float64 {
	if amount <= 0 || !ps.Alive() {
		return 0
	}
	if inv != nil && inv.IsInvulnerable() {
		return 0
	}

	absorbed := math.Min(ps.Shields, amount)
	ps.Shields -= absorbed
	rest := amount - absorbed

	dealt := math.Min(ps.Health, rest)
	ps.Health -= dealt
	return absorbed + dealt
}

// ApplyPickup применяет предмет к игроку. Здоровье и щиты ограничены
// максимумами; остальное передаётся инвентарю. Возвращает false, если
// предмет ничего не изменил и должен остаться в зоне.
func ApplyPickup(ps *world.PlayerState, inv *Inventory, p world.Pickup) bool {
	switch p.Kind {
	case world.PickupHealth:
		if ps.Health >= ps.MaxHealth {
			return false
		}
		ps.Health = math.Min(ps.MaxHealth, ps.Health+float64(p.Amount))
		return true
	case world.PickupShield:
		if ps.Shields >= ps.MaxShields {
			return false
		}
		ps.Shields = math.Min(ps.MaxShields, ps.Shields+float64(p.Amount))
		return true
	}
	return inv.ApplyPickup(p)
}

// NormalizePlayer приводит состояние игрока к допустимым диапазонам:
// здоровье и щиты в [0, max], инвентарь через Normalize
func NormalizePlayer(ps *world.PlayerState) {
	if ps.MaxHealth <= 0 {
		ps.MaxHealth = world.DefaultMaxHealth
	}
	if ps.MaxShields <= 0 {
		ps.MaxShields = world.DefaultMaxShields
	}
	ps.Health = math.Max(0, math.Min(ps.MaxHealth, ps.Health))
	ps.Shields = math.Max(0, math.Min(ps.MaxShields, ps.Shields))
	ps.Inventory = Normalize(ps.Inventory)
}
