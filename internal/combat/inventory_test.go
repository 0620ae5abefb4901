package combat

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/annel0/descent/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInventory_Defaults(t *testing.T) {
	inv := NewInventory()

	assert.True(t, inv.HasWeapon(BaseWeapon))
	assert.Equal(t, BaseWeapon, inv.PrimaryWeapon().ID)
	sec, ok := inv.SecondaryWeapon()
	require.True(t, ok)
	assert.Equal(t, WeaponConcussion, sec.ID)
	assert.Equal(t, 3, inv.Ammo(AmmoConcussion))
	assert.Equal(t, 100, inv.Ammo(AmmoEnergy))
	assert.Equal(t, 1.0, inv.DamageMultiplier())
	assert.False(t, inv.IsInvulnerable())
	assert.False(t, inv.IsInvisible())
}

func TestCatalog(t *testing.T) {
	base, ok := WeaponByID(BaseWeapon)
	require.True(t, ok)
	assert.True(t, base.Infinite())
	assert.Equal(t, Primary, base.Category)

	for _, w := range Catalog() {
		if w.Infinite() {
			continue
		}
		assert.Greater(t, MaxAmmo(w.AmmoType), 0, "нет максимума для %s", w.AmmoType)
		assert.Greater(t, w.AmmoPerShot, 0)
	}

	assert.Equal(t, 10000, MaxAmmo(AmmoVulcan))
	assert.Equal(t, 20, MaxAmmo(AmmoConcussion))
	assert.Equal(t, 5, MaxAmmo(AmmoMega))
	assert.Zero(t, MaxAmmo("antimatter"))

	d, ok := PowerUpDuration(PowerUpQuadDamage)
	require.True(t, ok)
	assert.Equal(t, 30.0, d)

	loot := LootTable()
	assert.NotContains(t, loot.Weapons, BaseWeapon)
	assert.ElementsMatch(t, AmmoTypes(), loot.AmmoTypes)
}

func TestSelectWeapons(t *testing.T) {
	inv := NewInventory()

	assert.False(t, inv.SelectPrimary(1), "открыт только лазер")
	assert.False(t, inv.SelectPrimary(-1))
	assert.Equal(t, 0, inv.PrimaryIndex())

	require.True(t, inv.UnlockWeapon(WeaponPlasma))
	require.True(t, inv.SelectPrimary(1))
	assert.Equal(t, WeaponPlasma, inv.PrimaryWeapon().ID)

	// Открытие оружия с меньшим номером слота не сбивает выбор
	require.True(t, inv.UnlockWeapon(WeaponVulcan))
	assert.Equal(t, WeaponPlasma, inv.PrimaryWeapon().ID)
	assert.Equal(t, 2, inv.PrimaryIndex())

	assert.True(t, inv.SelectSecondary(-1))
	_, ok := inv.SecondaryWeapon()
	assert.False(t, ok)
	assert.Equal(t, -1, inv.SecondaryIndex())

	assert.False(t, inv.SelectSecondary(1))
	assert.Equal(t, -1, inv.SecondaryIndex(), "индекс вне диапазона игнорируется")
	assert.True(t, inv.SelectSecondary(0))
	assert.Equal(t, 0, inv.SecondaryIndex())
}

func TestUnlockWeapon(t *testing.T) {
	inv := NewInventory()
	assert.False(t, inv.UnlockWeapon(BaseWeapon))
	assert.False(t, inv.UnlockWeapon("railgun"))
	assert.True(t, inv.UnlockWeapon(WeaponMega))
	assert.False(t, inv.UnlockWeapon(WeaponMega))
	assert.Len(t, inv.Secondaries(), 2)
}

func TestAmmoBounds(t *testing.T) {
	inv := NewInventory()

	assert.False(t, inv.UseAmmo(AmmoConcussion, 4), "при нехватке списания нет")
	assert.Equal(t, 3, inv.Ammo(AmmoConcussion))
	assert.True(t, inv.UseAmmo(AmmoConcussion, 3))
	assert.Equal(t, 0, inv.Ammo(AmmoConcussion))

	inv.AddAmmo(AmmoConcussion, 500)
	assert.Equal(t, 20, inv.Ammo(AmmoConcussion), "запас ограничен максимумом")

	inv.AddAmmo("antimatter", 10)
	assert.Zero(t, inv.Ammo("antimatter"))
	assert.False(t, inv.UseAmmo("antimatter", 0))
	assert.False(t, inv.UseAmmo(AmmoConcussion, -1))
}

func TestAmmoBounds_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	inv := NewInventory()
	types := AmmoTypes()

	for i := 0; i < 5000; i++ {
		at := types[rng.Intn(len(types))]
		amount := rng.Intn(MaxAmmo(at) + 5)
		before := inv.Ammo(at)
		if rng.Intn(2) == 0 {
			inv.AddAmmo(at, amount)
		} else {
			ok := inv.UseAmmo(at, amount)
			assert.Equal(t, before >= amount, ok)
			if !ok {
				assert.Equal(t, before, inv.Ammo(at))
			}
		}
		assert.GreaterOrEqual(t, inv.Ammo(at), 0)
		assert.LessOrEqual(t, inv.Ammo(at), MaxAmmo(at))
	}
}

func TestFire(t *testing.T) {
	inv := NewInventory()

	for i := 0; i < 10; i++ {
		w, ok := inv.Fire(Primary)
		require.True(t, ok, "лазер стреляет без боеприпасов")
		assert.Equal(t, BaseWeapon, w.ID)
	}

	for i := 0; i < 3; i++ {
		_, ok := inv.Fire(Secondary)
		require.True(t, ok)
	}
	assert.False(t, inv.CanFire(Secondary))
	_, ok := inv.Fire(Secondary)
	assert.False(t, ok)

	inv.UnlockWeapon(WeaponFusion)
	inv.SelectPrimary(1)
	inv.UseAmmo(AmmoEnergy, inv.Ammo(AmmoEnergy)-3)
	assert.False(t, inv.CanFire(Primary), "fusion требует 4 единицы энергии")

	inv.SelectSecondary(-1)
	assert.False(t, inv.CanFire(Secondary))
}

func TestPowerUpLifecycle(t *testing.T) {
	inv := NewInventory()

	require.True(t, inv.ActivatePowerUp(PowerUpQuadDamage))
	assert.Equal(t, QuadDamageMultiplier, inv.DamageMultiplier())

	inv.UpdatePowerUps(10)
	require.Len(t, inv.ActivePowerUps(), 1)
	assert.Equal(t, 20.0, inv.ActivePowerUps()[0].RemainingTime)

	// Повторная активация обновляет, а не дублирует
	require.True(t, inv.ActivatePowerUp(PowerUpQuadDamage))
	require.Len(t, inv.ActivePowerUps(), 1)
	assert.Equal(t, 30.0, inv.ActivePowerUps()[0].RemainingTime)

	require.True(t, inv.ActivatePowerUp(PowerUpCloak))
	assert.True(t, inv.IsInvisible())
	assert.False(t, inv.ActivatePowerUp("time_stop"))

	inv.UpdatePowerUps(25)
	assert.False(t, inv.IsInvisible(), "маскировка истекает ровно через 25 секунд")
	assert.Equal(t, QuadDamageMultiplier, inv.DamageMultiplier())

	inv.UpdatePowerUps(5)
	assert.Empty(t, inv.ActivePowerUps())
	assert.Equal(t, 1.0, inv.DamageMultiplier())

	inv.ActivatePowerUp(PowerUpInvulnerability)
	inv.UpdatePowerUps(0)
	inv.UpdatePowerUps(-5)
	assert.True(t, inv.IsInvulnerable())
}

func TestPowerUps_RemainingAlwaysPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	inv := NewInventory()
	kinds := []string{PowerUpQuadDamage, PowerUpInvulnerability, PowerUpCloak}

	for i := 0; i < 2000; i++ {
		if rng.Intn(3) == 0 {
			inv.ActivatePowerUp(kinds[rng.Intn(len(kinds))])
		}
		inv.UpdatePowerUps(rng.Float64() * 8)
		for _, p := range inv.ActivePowerUps() {
			assert.Greater(t, p.RemainingTime, 0.0)
		}
		assert.LessOrEqual(t, len(inv.ActivePowerUps()), len(kinds))
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	inv := NewInventory()
	inv.UnlockWeapon(WeaponVulcan)
	inv.UnlockWeapon(WeaponSmart)
	inv.SelectPrimary(1)
	inv.SelectSecondary(1)
	inv.AddAmmo(AmmoVulcan, 1234)
	inv.ActivatePowerUp(PowerUpCloak)
	inv.UpdatePowerUps(2.5)

	data := inv.Serialize()

	// Через JSON, как при сохранении
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var decoded world.InventoryData
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := Deserialize(decoded)
	assert.Equal(t, data, restored.Serialize())
	assert.Equal(t, WeaponVulcan, restored.PrimaryWeapon().ID)
	sec, _ := restored.SecondaryWeapon()
	assert.Equal(t, WeaponSmart, sec.ID)
	assert.Equal(t, 1234, restored.Ammo(AmmoVulcan))
	assert.Equal(t, 22.5, restored.ActivePowerUps()[0].RemainingTime)
}

func TestDeserialize_RepairsData(t *testing.T) {
	inv := Deserialize(world.InventoryData{
		UnlockedWeapons: []string{WeaponPlasma, "railgun"},
		PrimaryIndex:    7,
		SecondaryIndex:  3,
		Ammo:            map[string]int{AmmoMega: 99, AmmoEnergy: -4, "antimatter": 5},
		ActivePowerUps: []world.ActivePowerUp{
			{Type: PowerUpCloak, RemainingTime: 0},
			{Type: PowerUpQuadDamage, RemainingTime: 12},
			{Type: "time_stop", RemainingTime: 5},
		},
	})

	assert.True(t, inv.HasWeapon(BaseWeapon), "базовое оружие добавляется всегда")
	assert.False(t, inv.HasWeapon("railgun"))
	assert.Equal(t, 1, inv.PrimaryIndex(), "индекс ограничен диапазоном")
	assert.Equal(t, -1, inv.SecondaryIndex())
	assert.Equal(t, 5, inv.Ammo(AmmoMega))
	assert.Equal(t, 0, inv.Ammo(AmmoEnergy))
	assert.Zero(t, inv.Ammo("antimatter"))
	require.Len(t, inv.ActivePowerUps(), 1)
	assert.Equal(t, PowerUpQuadDamage, inv.ActivePowerUps()[0].Type)

	empty := Deserialize(world.InventoryData{})
	assert.Equal(t, []string{BaseWeapon}, empty.Serialize().UnlockedWeapons)
	assert.Equal(t, 0, empty.PrimaryIndex())
}

func TestApplyPickup(t *testing.T) {
	inv := NewInventory()

	assert.True(t, inv.ApplyPickup(world.Pickup{Kind: world.PickupAmmo, Item: AmmoHoming, Amount: 4}))
	assert.Equal(t, 4, inv.Ammo(AmmoHoming))
	assert.False(t, inv.ApplyPickup(world.Pickup{Kind: world.PickupAmmo, Item: "antimatter", Amount: 4}))

	assert.True(t, inv.ApplyPickup(world.Pickup{Kind: world.PickupWeapon, Item: WeaponHoming}))
	assert.True(t, inv.HasWeapon(WeaponHoming))
	// Повторное оружие превращается в боеприпасы
	assert.True(t, inv.ApplyPickup(world.Pickup{Kind: world.PickupWeapon, Item: WeaponHoming}))
	assert.Equal(t, 10, inv.Ammo(AmmoHoming))
	assert.False(t, inv.ApplyPickup(world.Pickup{Kind: world.PickupWeapon, Item: BaseWeapon}))

	assert.True(t, inv.ApplyPickup(world.Pickup{Kind: world.PickupQuadDamage}))
	assert.Equal(t, QuadDamageMultiplier, inv.DamageMultiplier())

	assert.False(t, inv.ApplyPickup(world.Pickup{Kind: world.PickupHealth, Amount: 10}))
}
