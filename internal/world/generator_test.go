package world

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqIDs детерминированный генератор идентификаторов для тестов
func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestGenerate_BackExitAndPosition(t *testing.T) {
	g := NewGenerator(42, WithIDFunc(seqIDs("a")))
	start := NewStartingArea(ThemeAlienHive)

	for _, dir := range []Direction{North, East, West, Down} {
		res := g.Generate(start, dir, GenerationContext{PlayerHealth: 100}, ThemeAlienHive, DifficultyNormal)
		require.NotNil(t, res.Area)

		back, ok := res.Area.Exit(dir.Opposite())
		require.True(t, ok, "у новой зоны должен быть обратный выход %s", dir.Opposite())
		assert.Equal(t, start.ID, back.Target(), "обратный выход должен вести в исходную зону")

		// Грани соседних зон совпадают
		fromFace := start.ExitPosition(dir)
		newFace := res.Area.ExitPosition(dir.Opposite())
		assert.True(t, fromFace.ApproxEquals(newFace, 1e-9), "грани %s: %v != %v", dir, fromFace, newFace)
	}
}

func TestGenerate_BackExitCopiesType(t *testing.T) {
	g := NewGenerator(7)
	start := NewStartingArea(ThemeSpaceStation)

	res := g.Generate(start, East, GenerationContext{PlayerHealth: 100}, ThemeSpaceStation, DifficultyNormal)
	back, ok := res.Area.Exit(West)
	require.True(t, ok)
	assert.Equal(t, ExitDoor, back.Type, "тип обратного выхода совпадает с исходным")
}

func TestGenerate_DimensionsFromTable(t *testing.T) {
	g := NewGenerator(1)
	start := NewStartingArea(ThemeAncientRuins)

	for i := 0; i < 300; i++ {
		dir := allDirections[i%len(allDirections)]
		res := g.Generate(start, dir, GenerationContext{PlayerHealth: 100, ExplorationDepth: i % 10}, ThemeAncientRuins, DifficultyNormal)
		a := res.Area

		require.True(t, a.Type.Valid())
		table, ok := DimensionsFor(a.Type)
		require.True(t, ok)
		assert.True(t, table.Width.Contains(a.Dimensions.Width), "ширина %v вне %v", a.Dimensions.Width, table.Width)
		assert.True(t, table.Height.Contains(a.Dimensions.Height), "высота %v вне %v", a.Dimensions.Height, table.Height)
		assert.True(t, table.Length.Contains(a.Dimensions.Length), "длина %v вне %v", a.Dimensions.Length, table.Length)
		assert.Equal(t, ShapeFor(a.Type), a.Shape)
		require.NoError(t, a.Validate())
	}
}

func TestGenerate_ExtraExits(t *testing.T) {
	g := NewGenerator(99)
	start := NewStartingArea(ThemeAlienHive)

	for i := 0; i < 200; i++ {
		res := g.Generate(start, North, GenerationContext{PlayerHealth: 100}, ThemeAlienHive, DifficultyNormal)
		a := res.Area

		// обратный выход + 1..3 дополнительных
		assert.GreaterOrEqual(t, len(a.Exits), 2)
		assert.LessOrEqual(t, len(a.Exits), 1+MaxExtraExits)

		seen := map[Direction]bool{}
		for _, e := range a.Exits {
			assert.False(t, seen[e.Direction], "повторное направление %s", e.Direction)
			seen[e.Direction] = true
			assert.True(t, e.Type.Valid())
		}

		// Connections перечисляет ровно неисследованные выходы
		assert.Len(t, res.Connections, len(a.Exits)-1)
		for _, d := range res.Connections {
			e, ok := a.Exit(d)
			require.True(t, ok)
			assert.False(t, e.Explored())
		}
	}
}

func TestGenerate_NoEnemiesAtShallowDepth(t *testing.T) {
	g := NewGenerator(5)
	start := NewStartingArea(ThemeSpaceStation)

	for depth := 0; depth < EnemyMinDepth; depth++ {
		for i := 0; i < 200; i++ {
			res := g.Generate(start, North, GenerationContext{PlayerHealth: 100, ExplorationDepth: depth}, ThemeSpaceStation, DifficultyInsane)
			assert.Empty(t, res.Enemies, "на глубине %d противников быть не должно", depth)
		}
	}
}

func TestGenerate_EnemiesAppearDeeper(t *testing.T) {
	g := NewGenerator(5)
	start := NewStartingArea(ThemeSpaceStation)

	total := 0
	for i := 0; i < 200; i++ {
		res := g.Generate(start, North, GenerationContext{PlayerHealth: 100, ExplorationDepth: 10}, ThemeSpaceStation, DifficultyNormal)
		assert.LessOrEqual(t, len(res.Enemies), MaxEnemiesPerArea)
		for _, e := range res.Enemies {
			assert.Equal(t, res.Area.ID, e.AreaID)
			assert.True(t, res.Area.Contains(e.Position), "противник должен быть внутри зоны")
			assert.Greater(t, e.Health, 0.0)
		}
		total += len(res.Enemies)
	}
	assert.Greater(t, total, 0)
}

func TestEnemySpawnChance(t *testing.T) {
	assert.Zero(t, EnemySpawnChance(GenerationContext{ExplorationDepth: 1}, DifficultyInsane))

	shallow := EnemySpawnChance(GenerationContext{ExplorationDepth: 2}, DifficultyNormal)
	deep := EnemySpawnChance(GenerationContext{ExplorationDepth: 8}, DifficultyNormal)
	assert.Greater(t, deep, shallow, "вероятность растёт с глубиной")
	assert.InDelta(t, 0.29, shallow, 1e-9)
	assert.InDelta(t, 0.85, EnemySpawnChance(GenerationContext{ExplorationDepth: 50}, DifficultyNormal), 1e-9)

	calm := EnemySpawnChance(GenerationContext{ExplorationDepth: 5, RecentCombat: true}, DifficultyNormal)
	assert.Less(t, calm, EnemySpawnChance(GenerationContext{ExplorationDepth: 5}, DifficultyNormal))

	assert.LessOrEqual(t, EnemySpawnChance(GenerationContext{ExplorationDepth: 50}, DifficultyInsane), 0.95)
	assert.Less(t,
		EnemySpawnChance(GenerationContext{ExplorationDepth: 5}, DifficultyEasy),
		EnemySpawnChance(GenerationContext{ExplorationDepth: 5}, DifficultyHard))
}

func TestGenerate_HealingOnlyAtLowHealth(t *testing.T) {
	g := NewGenerator(11)
	start := NewStartingArea(ThemeAlienHive)

	countHealing := func(health float64) int {
		n := 0
		for i := 0; i < 300; i++ {
			res := g.Generate(start, North, GenerationContext{PlayerHealth: health}, ThemeAlienHive, DifficultyNormal)
			for _, p := range res.PowerUps {
				if p.Kind == PickupHealth {
					n++
				}
			}
		}
		return n
	}

	assert.Zero(t, countHealing(LowHealthThreshold), "при здоровье не ниже порога аптечек нет")
	assert.Zero(t, countHealing(100))
	assert.Greater(t, countHealing(10), 100, "при низком здоровье аптечки появляются часто")
}

func TestGenerate_MixedThemeResolves(t *testing.T) {
	g := NewGenerator(3)
	start := NewStartingArea(ThemeMixed)

	seen := map[Theme]bool{}
	for i := 0; i < 300; i++ {
		res := g.Generate(start, North, GenerationContext{PlayerHealth: 100}, ThemeMixed, DifficultyNormal)
		assert.NotEqual(t, ThemeMixed, res.Area.Theme)
		assert.Contains(t, ConcreteThemes(), res.Area.Theme)
		seen[res.Area.Theme] = true
	}
	assert.Len(t, seen, len(ConcreteThemes()), "все конкретные темы должны встречаться")

	fixed := g.Generate(start, North, GenerationContext{PlayerHealth: 100}, ThemeAncientRuins, DifficultyNormal)
	assert.Equal(t, ThemeAncientRuins, fixed.Area.Theme)
}

func TestGenerate_DoesNotMutateFrom(t *testing.T) {
	g := NewGenerator(8)
	start := NewStartingArea(ThemeAlienHive)
	before := start.Clone()

	g.Generate(start, North, GenerationContext{PlayerHealth: 10, ExplorationDepth: 6}, ThemeAlienHive, DifficultyHard)

	assert.Equal(t, before, start)
	e, _ := start.Exit(North)
	assert.False(t, e.Explored())
}

func TestGenerate_Deterministic(t *testing.T) {
	gctx := GenerationContext{PlayerHealth: 20, ExplorationDepth: 4, VisitedAreaTypes: []string{"room"}}

	g1 := NewGenerator(2024, WithIDFunc(seqIDs("x")))
	g2 := NewGenerator(2024, WithIDFunc(seqIDs("x")))
	start := NewStartingArea(ThemeMixed)

	for i := 0; i < 20; i++ {
		r1 := g1.Generate(start, West, gctx, ThemeMixed, DifficultyNormal)
		r2 := g2.Generate(start, West, gctx, ThemeMixed, DifficultyNormal)
		assert.Equal(t, r1, r2)
	}
}

func TestGenerate_LootTable(t *testing.T) {
	g := NewGenerator(13, WithLootTable(LootTable{AmmoTypes: []string{"mega"}}))
	start := NewStartingArea(ThemeAlienHive)

	for i := 0; i < 300; i++ {
		res := g.Generate(start, North, GenerationContext{PlayerHealth: 100}, ThemeAlienHive, DifficultyNormal)
		for _, p := range res.PowerUps {
			if p.Kind == PickupAmmo {
				assert.Equal(t, "mega", p.Item)
				assert.Greater(t, p.Amount, 0)
			}
			assert.NotEqual(t, PickupWeapon, p.Kind, "оружия нет в таблице добычи")
		}
	}
}
