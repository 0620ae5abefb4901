package world

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/annel0/descent/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection_Opposite(t *testing.T) {
	for _, d := range AllDirections() {
		assert.Equal(t, d, d.Opposite().Opposite())
		assert.NotEqual(t, d, d.Opposite())
		assert.True(t, d.Unit().Add(d.Opposite().Unit()).Equals(vec.Zero()))
	}
	assert.Equal(t, vec.Vec3{Z: -1}, North.Unit(), "север смотрит в -Z")
	assert.True(t, Up.Vertical())
	assert.False(t, East.Vertical())
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" North ")
	require.NoError(t, err)
	assert.Equal(t, North, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestThemeAndDifficulty(t *testing.T) {
	_, err := ParseTheme("alien_hive")
	assert.NoError(t, err)
	_, err = ParseTheme("jungle")
	assert.Error(t, err)

	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, ThemeSpaceStation, ThemeSpaceStation.Resolve(rng))

	d, err := ParseDifficulty("hard")
	require.NoError(t, err)
	assert.Equal(t, 1.3, d.EnemyFactor())
	_, err = ParseDifficulty("nightmare")
	assert.Error(t, err)
}

func TestDimensionTableIsExhaustive(t *testing.T) {
	for _, at := range AllAreaTypes() {
		table, ok := DimensionsFor(at)
		require.True(t, ok, "нет размеров для %s", at)
		assert.Greater(t, table.Width.Min, 0.0)
		assert.Greater(t, table.Height.Min, 0.0)
		assert.Greater(t, table.Length.Min, 0.0)
		assert.NotEmpty(t, ShapeFor(at))
	}
	assert.False(t, AreaType("tunnel").Valid())
}

func TestArea_SetExitTarget(t *testing.T) {
	a := NewStartingArea(ThemeAlienHive)

	require.NoError(t, a.SetExitTarget(North, "b"))
	e, _ := a.Exit(North)
	assert.Equal(t, "b", e.Target())

	// Повторная запись той же цели допустима
	assert.NoError(t, a.SetExitTarget(North, "b"))
	// Перенаправление запрещено
	assert.ErrorIs(t, a.SetExitTarget(North, "c"), ErrExitRetargeted)
	e, _ = a.Exit(North)
	assert.Equal(t, "b", e.Target())

	assert.ErrorIs(t, a.SetExitTarget(South, "c"), ErrExitNotFound)
}

func TestArea_AddExitAndUnexplored(t *testing.T) {
	a := NewStartingArea(ThemeAlienHive)
	assert.Len(t, a.UnexploredExits(), 4)

	assert.False(t, a.AddExit(Exit{Direction: North, Type: ExitDoor}))
	assert.True(t, a.AddExit(Exit{Direction: Up, Type: ExitOpen}))
	assert.Len(t, a.Exits, 5)
}

func TestArea_ContainsAndExitPosition(t *testing.T) {
	a := NewStartingArea(ThemeAlienHive)

	assert.True(t, a.Contains(vec.Vec3{X: 10, Y: 6, Z: -10}), "граница входит")
	assert.False(t, a.Contains(vec.Vec3{X: 10.1}))

	assert.Equal(t, vec.Vec3{Z: -10}, a.ExitPosition(North))
	assert.Equal(t, vec.Vec3{X: 10}, a.ExitPosition(East))
	assert.Equal(t, vec.Vec3{Y: -6}, a.ExitPosition(Down))
}

func TestArea_Validate(t *testing.T) {
	assert.NoError(t, NewStartingArea(ThemeAlienHive).Validate())

	tests := []struct {
		name   string
		mutate func(a *Area)
	}{
		{"пустой id", func(a *Area) { a.ID = "" }},
		{"неизвестный тип", func(a *Area) { a.Type = "tunnel" }},
		{"нулевая ширина", func(a *Area) { a.Dimensions.Width = 0 }},
		{"повтор выхода", func(a *Area) { a.Exits = append(a.Exits, Exit{Direction: North, Type: ExitOpen}) }},
		{"неизвестное направление", func(a *Area) { a.Exits[0].Direction = "sideways" }},
		{"неизвестный тип выхода", func(a *Area) { a.Exits[0].Type = "portal" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewStartingArea(ThemeAlienHive)
			tt.mutate(a)
			assert.Error(t, a.Validate())
		})
	}
}

func TestArea_CloneIsDeep(t *testing.T) {
	a := NewStartingArea(ThemeAlienHive)
	a.Hazards = []Hazard{HazardToxicGas}
	require.NoError(t, a.SetExitTarget(North, "b"))

	c := a.Clone()
	assert.Equal(t, a, c)

	*c.Exits[0].TargetAreaID = "changed"
	c.Hazards[0] = HazardLava
	c.Exits[1].Type = ExitLocked

	e, _ := a.Exit(North)
	assert.Equal(t, "b", e.Target())
	assert.Equal(t, HazardToxicGas, a.Hazards[0])
	assert.Equal(t, ExitDoor, a.Exits[1].Type)

	a.Hazards = []Hazard{}
	assert.NotNil(t, a.Clone().Hazards, "пустой срез не превращается в nil")
}

func TestPlayerState_Defaults(t *testing.T) {
	ps := NewPlayerState(InventoryData{})
	assert.Equal(t, 100.0, ps.Health)
	assert.Equal(t, 100.0, ps.MaxHealth)
	assert.Equal(t, 50.0, ps.Shields)
	assert.Equal(t, 100.0, ps.MaxShields)
	assert.Equal(t, StartingAreaID, ps.CurrentAreaID)
	assert.True(t, ps.Alive())
	assert.True(t, ps.Heading().ApproxEquals(vec.Vec3{Z: -1}, 1e-9), "нулевой поворот смотрит на север")
}

func TestGenerationContext_Validate(t *testing.T) {
	assert.NoError(t, GenerationContext{}.Validate())
	assert.Error(t, GenerationContext{PlayerHealth: -1}.Validate())
	assert.Error(t, GenerationContext{ExplorationDepth: -1}.Validate())
}

func TestInventoryData_ClonePreservesEmptySlices(t *testing.T) {
	d := InventoryData{
		UnlockedWeapons: []string{},
		Ammo:            map[string]int{"energy": 5},
		ActivePowerUps:  []ActivePowerUp{},
	}
	c := NewPlayerState(d).Clone().Inventory
	assert.NotNil(t, c.UnlockedWeapons)
	assert.NotNil(t, c.ActivePowerUps)
	assert.Equal(t, d, c)

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"activePowerUps":[]`)

	assert.Nil(t, InventoryData{}.Clone().ActivePowerUps, "nil остаётся nil")

	full := InventoryData{UnlockedWeapons: []string{"laser"}, ActivePowerUps: []ActivePowerUp{{Type: "cloak", RemainingTime: 3}}}
	cp := full.Clone()
	cp.UnlockedWeapons[0] = "vulcan"
	cp.ActivePowerUps[0].RemainingTime = 1
	assert.Equal(t, "laser", full.UnlockedWeapons[0])
	assert.Equal(t, 3.0, full.ActivePowerUps[0].RemainingTime)
}
