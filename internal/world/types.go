package world

import (
	"fmt"
	"math/rand"
)

// AreaType тип зоны. Перечисление закрытое: каждая таблица ниже
// обязана содержать запись для каждого типа.
type AreaType string

const (
	AreaCorridor AreaType = "corridor"
	AreaRoom     AreaType = "room"
	AreaJunction AreaType = "junction"
	AreaShaft    AreaType = "shaft"
	AreaCavern   AreaType = "cavern"
)

// AllAreaTypes возвращает все типы зон
func AllAreaTypes() []AreaType {
	return []AreaType{AreaCorridor, AreaRoom, AreaJunction, AreaShaft, AreaCavern}
}

// Valid сообщает, входит ли тип в перечисление
func (t AreaType) Valid() bool {
	_, ok := areaDimensions[t]
	return ok
}

// Range задаёт отрезок [Min, Max]
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains проверяет попадание значения в отрезок
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) sample(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// DimensionTable диапазоны размеров зоны по трём осям
type DimensionTable struct {
	Width  Range `json:"width"`
	Height Range `json:"height"`
	Length Range `json:"length"`
}

// areaDimensions фиксированная таблица размеров по типам зон.
// Код построения геометрии рассчитывает именно на эти диапазоны.
var areaDimensions = map[AreaType]DimensionTable{
	AreaCorridor: {Width: Range{6, 10}, Height: Range{6, 10}, Length: Range{20, 40}},
	AreaRoom:     {Width: Range{16, 30}, Height: Range{10, 18}, Length: Range{16, 30}},
	AreaJunction: {Width: Range{12, 18}, Height: Range{10, 14}, Length: Range{12, 18}},
	AreaShaft:    {Width: Range{8, 12}, Height: Range{30, 60}, Length: Range{8, 12}},
	AreaCavern:   {Width: Range{30, 50}, Height: Range{16, 30}, Length: Range{30, 50}},
}

// areaShapes геометрическая форма для каждого типа зоны
var areaShapes = map[AreaType]string{
	AreaCorridor: "tube",
	AreaRoom:     "box",
	AreaJunction: "hub",
	AreaShaft:    "cylinder",
	AreaCavern:   "irregular",
}

// DimensionsFor возвращает таблицу размеров для типа зоны
func DimensionsFor(t AreaType) (DimensionTable, bool) {
	d, ok := areaDimensions[t]
	return d, ok
}

// ShapeFor возвращает форму зоны для типа
func ShapeFor(t AreaType) string {
	return areaShapes[t]
}

// Theme визуальная и поведенческая тема зоны
type Theme string

const (
	ThemeAlienHive    Theme = "alien_hive"
	ThemeSpaceStation Theme = "space_station"
	ThemeAncientRuins Theme = "ancient_ruins"
	// ThemeMixed смешанная тема: для каждой новой зоны выбирается одна из конкретных
	ThemeMixed Theme = "procedural_mix"
)

var concreteThemes = []Theme{ThemeAlienHive, ThemeSpaceStation, ThemeAncientRuins}

// ConcreteThemes возвращает темы, которые могут быть отрисованы напрямую
func ConcreteThemes() []Theme {
	out := make([]Theme, len(concreteThemes))
	copy(out, concreteThemes)
	return out
}

// ParseTheme проверяет строку темы
func ParseTheme(s string) (Theme, error) {
	t := Theme(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown theme %q", s)
	}
	return t, nil
}

// Valid сообщает, входит ли тема в перечисление
func (t Theme) Valid() bool {
	switch t {
	case ThemeAlienHive, ThemeSpaceStation, ThemeAncientRuins, ThemeMixed:
		return true
	}
	return false
}

// Resolve возвращает конкретную тему: смешанная выбирается равновероятно
// среди конкретных, фиксированная возвращает саму себя.
func (t Theme) Resolve(rng *rand.Rand) Theme {
	if t != ThemeMixed {
		return t
	}
	return concreteThemes[rng.Intn(len(concreteThemes))]
}

// Hazard вид опасности в зоне
type Hazard string

const (
	HazardRadiation  Hazard = "radiation"
	HazardElectrical Hazard = "electrical"
	HazardToxicGas   Hazard = "toxic_gas"
	HazardLava       Hazard = "lava"
	HazardTurret     Hazard = "turret"
	HazardCrusher    Hazard = "crusher"
)

// themeHazards опасности, характерные для каждой конкретной темы
var themeHazards = map[Theme][]Hazard{
	ThemeAlienHive:    {HazardToxicGas, HazardLava, HazardRadiation},
	ThemeSpaceStation: {HazardElectrical, HazardTurret, HazardRadiation},
	ThemeAncientRuins: {HazardCrusher, HazardLava, HazardElectrical},
}

// ExitType тип выхода
type ExitType string

const (
	ExitOpen      ExitType = "open"
	ExitDoor      ExitType = "door"
	ExitLocked    ExitType = "locked"
	ExitDestroyed ExitType = "destroyed"
)

// Valid сообщает, входит ли тип выхода в перечисление
func (t ExitType) Valid() bool {
	switch t {
	case ExitOpen, ExitDoor, ExitLocked, ExitDestroyed:
		return true
	}
	return false
}

// Difficulty уровень сложности сессии
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
	DifficultyInsane Difficulty = "insane"
)

// difficultyEnemyFactor множитель вероятности появления врагов
var difficultyEnemyFactor = map[Difficulty]float64{
	DifficultyEasy:   0.6,
	DifficultyNormal: 1.0,
	DifficultyHard:   1.3,
	DifficultyInsane: 1.6,
}

// ParseDifficulty проверяет строку сложности
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if _, ok := difficultyEnemyFactor[d]; !ok {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// EnemyFactor множитель вероятности появления врагов; неизвестная сложность считается normal
func (d Difficulty) EnemyFactor() float64 {
	if f, ok := difficultyEnemyFactor[d]; ok {
		return f
	}
	return 1.0
}
