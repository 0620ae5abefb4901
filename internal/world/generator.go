package world

import (
	"math"
	"math/rand"
	"sync"

	"github.com/annel0/descent/internal/util"
	"github.com/annel0/descent/internal/vec"
	"github.com/google/uuid"
)

// Константы наполнения зон
const (
	// LowHealthThreshold ниже этого здоровья генератор может положить аптечку
	LowHealthThreshold = 30.0
	// HealingSpawnChance шанс аптечки при низком здоровье
	HealingSpawnChance = 0.6
	// EnemyMinDepth на меньшей глубине противники не появляются
	EnemyMinDepth = 2
	// MaxEnemiesPerArea ограничение на число противников в зоне
	MaxEnemiesPerArea = 4
	// MaxExtraExits максимум дополнительных выходов новой зоны
	MaxExtraExits = 3
)

// LootTable описывает, какие боеприпасы и оружие может положить генератор.
// Заполняется из каталога боевой модели.
type LootTable struct {
	AmmoTypes []string
	Weapons   []string
}

// defaultLoot используется, если таблица не задана
var defaultLoot = LootTable{
	AmmoTypes: []string{"vulcan", "concussion", "homing"},
	Weapons:   []string{"vulcan", "spreadfire"},
}

// themeNarratives короткие атмосферные описания по темам
var themeNarratives = map[Theme][]string{
	ThemeAlienHive: {
		"The walls breathe with a slow, rhythmic pulse. Bioluminescent veins trace patterns that almost seem deliberate.",
		"Resin drips from the ceiling in long threads. Something skittered away the moment your lights touched it.",
		"The air is thick and warm. Clusters of translucent eggs line the far wall.",
	},
	ThemeSpaceStation: {
		"Emergency lights flicker through layers of condensation. Something large moved through here recently.",
		"A maintenance bay, half-stripped. Sparks fall from a severed conduit overhead.",
		"Warning klaxons loop silently on a dead console. The bulkheads are scorched black.",
	},
	ThemeAncientRuins: {
		"Glyphs older than human civilization line the walls, their meaning lost but their power still palpable.",
		"Vast pillars rise into darkness. The stone hums faintly under your hull.",
		"A collapsed archway opens onto a chamber of silent, watching statues.",
	},
}

// Generator генерирует новые зоны графа мира.
// Результат зависит только от входных данных и собственного генератора
// случайных чисел, поэтому при фиксированном сиде и IDFunc он воспроизводим.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	noise *util.Noise
	newID func() string
	loot  LootTable
}

// GeneratorOption настраивает Generator
type GeneratorOption func(*Generator)

// WithIDFunc задаёт генератор идентификаторов (по умолчанию UUID)
func WithIDFunc(f func() string) GeneratorOption {
	return func(g *Generator) {
		g.newID = f
	}
}

// WithLootTable задаёт таблицу добычи
func WithLootTable(t LootTable) GeneratorOption {
	return func(g *Generator) {
		if len(t.AmmoTypes) > 0 || len(t.Weapons) > 0 {
			g.loot = t
		}
	}
}

// NewGenerator создаёт генератор с указанным сидом
func NewGenerator(seed int64, opts ...GeneratorOption) *Generator {
	g := &Generator{
		rng:   rand.New(rand.NewSource(seed)),
		noise: util.NewNoise(seed, 0.02),
		newID: uuid.NewString,
		loot:  defaultLoot,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveTheme возвращает конкретную тему для новой зоны
func (g *Generator) ResolveTheme(theme Theme) Theme {
	g.mu.Lock()
	defer g.mu.Unlock()
	return theme.Resolve(g.rng)
}

// Generate создаёт новую зону за выходом dir зоны from.
// Вызывающая сторона гарантирует, что from существует и выход в dir
// ещё не исследован. from не изменяется: записать id новой зоны
// в выход from должен вызывающий.
func (g *Generator) Generate(from *Area, dir Direction, gctx GenerationContext, theme Theme, difficulty Difficulty) GenerationResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	resolved := theme.Resolve(g.rng)
	areaType := g.pickAreaType(dir, gctx.VisitedAreaTypes)
	dims := g.sampleDimensions(areaType)

	// Смещаемся от центра исходной зоны на сумму полуразмеров вдоль оси:
	// соседние зоны касаются гранями и не пересекаются.
	offset := from.Dimensions.HalfExtent(dir) + dims.HalfExtent(dir)
	position := from.Position.Add(dir.Unit().Scale(offset))

	area := &Area{
		ID:         g.newID(),
		Type:       areaType,
		Shape:      ShapeFor(areaType),
		Dimensions: dims,
		Position:   position,
		Theme:      resolved,
	}

	// Обратный выход всегда ведёт в исходную зону
	backType := ExitOpen
	if e, ok := from.Exit(dir); ok {
		backType = e.Type
	}
	fromID := from.ID
	area.Exits = append(area.Exits, Exit{
		Direction:    dir.Opposite(),
		Type:         backType,
		TargetAreaID: &fromID,
	})

	g.addExtraExits(area)
	area.Hazards = g.pickHazards(area, gctx.ExplorationDepth)

	narrative := g.pickNarrative(resolved)
	area.Description = narrative

	result := GenerationResult{
		Area:      area,
		Enemies:   g.spawnEnemies(area, gctx, difficulty),
		PowerUps:  g.spawnPickups(area, gctx),
		Narrative: narrative,
	}
	for _, e := range area.Exits {
		if !e.Explored() {
			result.Connections = append(result.Connections, e.Direction)
		}
	}
	return result
}

// pickAreaType выбирает тип зоны. Вертикальные проходы чаще становятся
// шахтами, горизонтальные коридорами; ещё не встречавшиеся типы получают бонус.
func (g *Generator) pickAreaType(dir Direction, visited []string) AreaType {
	weights := map[AreaType]float64{
		AreaCorridor: 35,
		AreaRoom:     25,
		AreaJunction: 15,
		AreaCavern:   15,
		AreaShaft:    10,
	}
	if dir.Vertical() {
		weights = map[AreaType]float64{
			AreaCorridor: 10,
			AreaRoom:     15,
			AreaJunction: 10,
			AreaCavern:   15,
			AreaShaft:    50,
		}
	}

	seen := make(map[string]struct{}, len(visited))
	for _, v := range visited {
		seen[v] = struct{}{}
	}

	types := AllAreaTypes()
	total := 0.0
	for _, t := range types {
		if _, ok := seen[string(t)]; !ok && len(visited) > 0 {
			weights[t] += 10
		}
		total += weights[t]
	}

	roll := g.rng.Float64() * total
	for _, t := range types {
		roll -= weights[t]
		if roll < 0 {
			return t
		}
	}
	return types[len(types)-1]
}

func (g *Generator) sampleDimensions(t AreaType) Dimensions {
	table := areaDimensions[t]
	return Dimensions{
		Width:  roundHalf(table.Width.sample(g.rng)),
		Height: roundHalf(table.Height.sample(g.rng)),
		Length: roundHalf(table.Length.sample(g.rng)),
	}
}

// addExtraExits добавляет 1–3 выхода в свободных направлениях
func (g *Generator) addExtraExits(area *Area) {
	free := make([]Direction, 0, len(allDirections))
	for _, d := range allDirections {
		if !area.HasExit(d) {
			free = append(free, d)
		}
	}
	g.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	n := 1 + g.rng.Intn(MaxExtraExits)
	if n > len(free) {
		n = len(free)
	}
	for _, d := range free[:n] {
		area.AddExit(Exit{Direction: d, Type: g.pickExitType()})
	}
}

func (g *Generator) pickExitType() ExitType {
	roll := g.rng.Intn(100)
	switch {
	case roll < 60:
		return ExitOpen
	case roll < 90:
		return ExitDoor
	default:
		return ExitLocked
	}
}

// pickHazards выбирает 0–2 опасности по шуму Перлина в точке зоны.
// Чем глубже игрок, тем выше интенсивность.
func (g *Generator) pickHazards(area *Area, depth int) []Hazard {
	candidates := themeHazards[area.Theme]
	if len(candidates) == 0 {
		return nil
	}

	n := g.noise.At3D(area.Position.X, area.Position.Y, area.Position.Z)
	intensity := n * math.Min(1, 0.3+float64(depth)/10)

	count := 0
	switch {
	case intensity > 0.6:
		count = 2
	case intensity > 0.45:
		count = 1
	}
	if count == 0 {
		return nil
	}

	perm := g.rng.Perm(len(candidates))
	hazards := make([]Hazard, 0, count)
	for _, i := range perm[:count] {
		hazards = append(hazards, candidates[i])
	}
	return hazards
}

// EnemySpawnChance вероятность появления противников в новой зоне
func EnemySpawnChance(gctx GenerationContext, difficulty Difficulty) float64 {
	if gctx.ExplorationDepth < EnemyMinDepth {
		return 0
	}
	p := math.Min(0.85, 0.15+0.07*float64(gctx.ExplorationDepth))
	if gctx.RecentCombat {
		// после боя даём передышку
		p *= 0.75
	}
	return math.Min(0.95, p*difficulty.EnemyFactor())
}

// HealingSpawnChanceFor вероятность аптечки в новой зоне
func HealingSpawnChanceFor(gctx GenerationContext) float64 {
	if gctx.PlayerHealth < LowHealthThreshold {
		return HealingSpawnChance
	}
	return 0
}

func (g *Generator) spawnEnemies(area *Area, gctx GenerationContext, difficulty Difficulty) []Enemy {
	if g.rng.Float64() >= EnemySpawnChance(gctx, difficulty) {
		return nil
	}

	count := 1 + g.rng.Intn(1+gctx.ExplorationDepth/4)
	if count > MaxEnemiesPerArea {
		count = MaxEnemiesPerArea
	}

	kinds := themeEnemies[area.Theme]
	if len(kinds) == 0 {
		kinds = []EnemyKind{EnemyDrone}
	}

	scale := 1 + 0.05*float64(gctx.ExplorationDepth)
	enemies := make([]Enemy, 0, count)
	for i := 0; i < count; i++ {
		kind := kinds[g.rng.Intn(len(kinds))]
		hp := enemyHealth[kind] * scale
		state := AIIdle
		if g.rng.Intn(2) == 0 {
			state = AIPatrol
		}
		enemies = append(enemies, Enemy{
			ID:        g.newID(),
			Kind:      kind,
			AreaID:    area.ID,
			Position:  g.pointInside(area),
			Health:    hp,
			MaxHealth: hp,
			AIState:   state,
		})
	}
	return enemies
}

func (g *Generator) spawnPickups(area *Area, gctx GenerationContext) []Pickup {
	var pickups []Pickup
	add := func(kind PickupKind, amount int, item string) {
		pickups = append(pickups, Pickup{
			ID:       g.newID(),
			Kind:     kind,
			AreaID:   area.ID,
			Position: g.pointInside(area),
			Amount:   amount,
			Item:     item,
		})
	}

	if p := HealingSpawnChanceFor(gctx); p > 0 && g.rng.Float64() < p {
		add(PickupHealth, 25+g.rng.Intn(26), "")
	}
	if len(g.loot.AmmoTypes) > 0 && g.rng.Float64() < 0.25 {
		add(PickupAmmo, 5+g.rng.Intn(16), g.loot.AmmoTypes[g.rng.Intn(len(g.loot.AmmoTypes))])
	}
	if gctx.ExplorationDepth >= 1 && g.rng.Float64() < 0.15 {
		add(PickupShield, 20+g.rng.Intn(31), "")
	}
	if g.rng.Float64() < math.Min(0.2, 0.08+0.01*float64(gctx.ExplorationDepth)) {
		kinds := []PickupKind{PickupQuadDamage, PickupInvulnerability, PickupCloak}
		add(kinds[g.rng.Intn(len(kinds))], 0, "")
	}
	if len(g.loot.Weapons) > 0 && g.rng.Float64() < 0.05 {
		add(PickupWeapon, 0, g.loot.Weapons[g.rng.Intn(len(g.loot.Weapons))])
	}
	return pickups
}

// pointInside случайная точка в пределах 80% габаритов зоны
func (g *Generator) pointInside(area *Area) vec.Vec3 {
	d := area.Dimensions
	return area.Position.Add(vec.Vec3{
		X: (g.rng.Float64() - 0.5) * d.Width * 0.8,
		Y: (g.rng.Float64() - 0.5) * d.Height * 0.8,
		Z: (g.rng.Float64() - 0.5) * d.Length * 0.8,
	})
}

func (g *Generator) pickNarrative(theme Theme) string {
	lines := themeNarratives[theme]
	if len(lines) == 0 {
		return ""
	}
	return lines[g.rng.Intn(len(lines))]
}

func roundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
