package combat

import (
	"testing"

	"github.com/annel0/descent/internal/vec"
	"github.com/annel0/descent/internal/world"
	"github.com/stretchr/testify/assert"
)

func TestApplyDamage(t *testing.T) {
	ps := world.NewPlayerState(NewInventory().Serialize())
	inv := NewInventory()

	assert.Equal(t, 30.0, ApplyDamage(ps, inv, 30), "урон по щитам тоже учитывается")
	assert.Equal(t, 20.0, ps.Shields)
	assert.Equal(t, 100.0, ps.Health)

	assert.Equal(t, 50.0, ApplyDamage(ps, inv, 50), "20 по щитам и 30 по здоровью")
	assert.Equal(t, 0.0, ps.Shields)
	assert.Equal(t, 70.0, ps.Health)

	inv.ActivatePowerUp(PowerUpInvulnerability)
	assert.Equal(t, 0.0, ApplyDamage(ps, inv, 500))
	assert.Equal(t, 70.0, ps.Health)

	assert.Equal(t, 70.0, ApplyDamage(ps, nil, 500))
	assert.Equal(t, 0.0, ps.Health)
	assert.False(t, ps.Alive())
	assert.Equal(t, 0.0, ApplyDamage(ps, nil, 10))
}

func TestApplyPickup_PlayerStats(t *testing.T) {
	inv := NewInventory()
	ps := world.NewPlayerState(inv.Serialize())

	assert.False(t, ApplyPickup(ps, inv, world.Pickup{Kind: world.PickupHealth, Amount: 25}), "здоровье полное")

	ps.Health = 90
	assert.True(t, ApplyPickup(ps, inv, world.Pickup{Kind: world.PickupHealth, Amount: 25}))
	assert.Equal(t, 100.0, ps.Health)

	assert.True(t, ApplyPickup(ps, inv, world.Pickup{Kind: world.PickupShield, Amount: 80}))
	assert.Equal(t, 100.0, ps.Shields)

	assert.True(t, ApplyPickup(ps, inv, world.Pickup{Kind: world.PickupCloak}))
	assert.True(t, inv.IsInvisible())
}

func TestNormalizePlayer(t *testing.T) {
	ps := &world.PlayerState{Health: 250, Shields: -3}
	NormalizePlayer(ps)

	assert.Equal(t, 100.0, ps.MaxHealth)
	assert.Equal(t, 100.0, ps.Health)
	assert.Equal(t, 0.0, ps.Shields)
	assert.Equal(t, []string{BaseWeapon}, ps.Inventory.UnlockedWeapons)
}

func TestWeapon_NewProjectile(t *testing.T) {
	w, _ := WeaponByID(WeaponPlasma)
	p := w.NewProjectile("player", vec.Vec3{Y: 1}, vec.Vec3{}, QuadDamageMultiplier)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, WeaponPlasma, p.Weapon)
	assert.Equal(t, w.Damage*4, p.Damage)
	assert.True(t, p.Velocity.ApproxEquals(vec.Vec3{Z: -w.ProjectileSpeed}, 1e-9))
	assert.InDelta(t, w.Range/w.ProjectileSpeed, p.Lifetime, 1e-9)
}
