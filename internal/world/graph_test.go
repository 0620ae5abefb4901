package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGraph генерирует цепочку зон и связывает их так, как это делает менеджер
func buildGraph(t *testing.T, steps int) map[string]*Area {
	t.Helper()
	g := NewGenerator(21, WithIDFunc(seqIDs("g")))
	start := NewStartingArea(ThemeMixed)
	areas := map[string]*Area{start.ID: start}

	frontier := []*Area{start}
	for i := 0; i < steps && len(frontier) > 0; i++ {
		from := frontier[0]
		open := from.UnexploredExits()
		if len(open) == 0 {
			frontier = frontier[1:]
			continue
		}
		dir := open[0].Direction
		res := g.Generate(from, dir, GenerationContext{PlayerHealth: 100, ExplorationDepth: len(areas)}, ThemeMixed, DifficultyNormal)
		require.NoError(t, from.SetExitTarget(dir, res.Area.ID))
		areas[res.Area.ID] = res.Area
		frontier = append(frontier, res.Area)
	}
	return areas
}

func TestValidateGraph_Consistent(t *testing.T) {
	areas := buildGraph(t, 25)
	assert.Empty(t, ValidateGraph(areas))

	// Все зоны достижимы из стартовой
	reach := Reachable(areas, StartingAreaID)
	assert.Len(t, reach, len(areas))
}

func TestValidateGraph_Violations(t *testing.T) {
	start := NewStartingArea(ThemeAlienHive)
	require.NoError(t, start.SetExitTarget(North, "missing"))

	v := ValidateGraph(map[string]*Area{start.ID: start})
	require.Len(t, v, 1)
	assert.Equal(t, start.ID, v[0].AreaID)
	assert.Equal(t, North, v[0].Direction)
	assert.Contains(t, v[0].String(), "does not exist")

	// Цель существует, но не ведёт обратно
	start = NewStartingArea(ThemeAlienHive)
	other := &Area{
		ID:         "b",
		Type:       AreaRoom,
		Dimensions: Dimensions{Width: 20, Height: 12, Length: 20},
		Exits:      []Exit{{Direction: South, Type: ExitOpen}},
	}
	require.NoError(t, start.SetExitTarget(North, "b"))
	v = ValidateGraph(map[string]*Area{start.ID: start, other.ID: other})
	require.Len(t, v, 1)
	assert.Contains(t, v[0].Reason, "unresolved")

	// У цели нет противоположного выхода
	other.Exits = []Exit{{Direction: East, Type: ExitOpen}}
	v = ValidateGraph(map[string]*Area{start.ID: start, other.ID: other})
	require.Len(t, v, 1)
	assert.Contains(t, v[0].Reason, "no opposite exit")
}

func TestReachable_UnknownStart(t *testing.T) {
	assert.Empty(t, Reachable(map[string]*Area{}, "nope"))
}
