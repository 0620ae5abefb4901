package world

import (
	"errors"
	"fmt"

	"github.com/annel0/descent/internal/vec"
)

// Ошибки модели графа
var (
	ErrExitNotFound   = errors.New("exit not found")
	ErrExitRetargeted = errors.New("exit already points to another area")
)

// Dimensions размеры зоны: Width по X, Height по Y, Length по Z
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Length float64 `json:"length"`
}

// HalfExtent возвращает половину размера зоны вдоль оси направления
func (d Dimensions) HalfExtent(dir Direction) float64 {
	switch dir {
	case East, West:
		return d.Width / 2
	case Up, Down:
		return d.Height / 2
	default:
		return d.Length / 2
	}
}

// Exit направленная связь из зоны к соседу.
// TargetAreaID == nil означает неисследованный выход.
type Exit struct {
	Direction    Direction `json:"direction"`
	Type         ExitType  `json:"type"`
	TargetAreaID *string   `json:"targetAreaId"`
}

// Explored сообщает, известна ли зона за выходом
func (e Exit) Explored() bool {
	return e.TargetAreaID != nil
}

// Target возвращает id соседней зоны или пустую строку
func (e Exit) Target() string {
	if e.TargetAreaID == nil {
		return ""
	}
	return *e.TargetAreaID
}

// Area узел графа мира
type Area struct {
	ID          string     `json:"id"`
	Type        AreaType   `json:"type"`
	Shape       string     `json:"shape"`
	Dimensions  Dimensions `json:"dimensions"`
	Position    vec.Vec3   `json:"position"`
	Theme       Theme      `json:"theme"`
	Hazards     []Hazard   `json:"hazards,omitempty"`
	Exits       []Exit     `json:"exits"`
	Description string     `json:"description,omitempty"`
}

// Exit возвращает выход в указанном направлении
func (a *Area) Exit(dir Direction) (Exit, bool) {
	for _, e := range a.Exits {
		if e.Direction == dir {
			return e, true
		}
	}
	return Exit{}, false
}

// HasExit сообщает, есть ли выход в указанном направлении
func (a *Area) HasExit(dir Direction) bool {
	_, ok := a.Exit(dir)
	return ok
}

// AddExit добавляет выход, если направление ещё не занято.
// Возвращает false, если выход в этом направлении уже есть.
func (a *Area) AddExit(e Exit) bool {
	if a.HasExit(e.Direction) {
		return false
	}
	a.Exits = append(a.Exits, e)
	return true
}

// SetExitTarget записывает id соседней зоны в выход.
// Однажды заданная цель не сбрасывается и не перенаправляется.
func (a *Area) SetExitTarget(dir Direction, targetID string) error {
	for i := range a.Exits {
		if a.Exits[i].Direction != dir {
			continue
		}
		if cur := a.Exits[i].TargetAreaID; cur != nil {
			if *cur == targetID {
				return nil
			}
			return fmt.Errorf("%w: %s %s -> %s", ErrExitRetargeted, a.ID, dir, *cur)
		}
		id := targetID
		a.Exits[i].TargetAreaID = &id
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrExitNotFound, a.ID, dir)
}

// UnexploredExits возвращает выходы без известной цели
func (a *Area) UnexploredExits() []Exit {
	var out []Exit
	for _, e := range a.Exits {
		if !e.Explored() {
			out = append(out, e)
		}
	}
	return out
}

// ExitPosition мировая позиция центра грани, на которой расположен выход
func (a *Area) ExitPosition(dir Direction) vec.Vec3 {
	return a.Position.Add(dir.Unit().Scale(a.Dimensions.HalfExtent(dir)))
}

// Contains проверяет, лежит ли точка внутри габаритов зоны (включая границы)
func (a *Area) Contains(p vec.Vec3) bool {
	d := p.Sub(a.Position)
	return abs(d.X) <= a.Dimensions.Width/2 &&
		abs(d.Y) <= a.Dimensions.Height/2 &&
		abs(d.Z) <= a.Dimensions.Length/2
}

// Validate проверяет инварианты зоны
func (a *Area) Validate() error {
	if a.ID == "" {
		return errors.New("area id is required")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("area %s: unknown type %q", a.ID, a.Type)
	}
	if a.Dimensions.Width <= 0 || a.Dimensions.Height <= 0 || a.Dimensions.Length <= 0 {
		return fmt.Errorf("area %s: dimensions must be positive", a.ID)
	}
	seen := make(map[Direction]struct{}, len(a.Exits))
	for _, e := range a.Exits {
		if !e.Direction.Valid() {
			return fmt.Errorf("area %s: unknown exit direction %q", a.ID, e.Direction)
		}
		if !e.Type.Valid() {
			return fmt.Errorf("area %s: unknown exit type %q", a.ID, e.Type)
		}
		if _, dup := seen[e.Direction]; dup {
			return fmt.Errorf("area %s: duplicate exit %s", a.ID, e.Direction)
		}
		seen[e.Direction] = struct{}{}
	}
	return nil
}

// Clone возвращает глубокую копию зоны
func (a *Area) Clone() *Area {
	if a == nil {
		return nil
	}
	c := *a
	if a.Hazards != nil {
		c.Hazards = make([]Hazard, len(a.Hazards))
		copy(c.Hazards, a.Hazards)
	}
	if a.Exits != nil {
		c.Exits = make([]Exit, len(a.Exits))
		for i, e := range a.Exits {
			c.Exits[i] = e
			if e.TargetAreaID != nil {
				id := *e.TargetAreaID
				c.Exits[i].TargetAreaID = &id
			}
		}
	}
	return &c
}

// StartingAreaID id стартовой зоны каждой сессии
const StartingAreaID = "start"

// NewStartingArea создаёт стартовую зону по фиксированному шаблону
func NewStartingArea(theme Theme) *Area {
	return &Area{
		ID:         StartingAreaID,
		Type:       AreaRoom,
		Shape:      ShapeFor(AreaRoom),
		Dimensions: Dimensions{Width: 20, Height: 12, Length: 20},
		Position:   vec.Vec3{},
		Theme:      theme,
		Exits: []Exit{
			{Direction: North, Type: ExitOpen},
			{Direction: East, Type: ExitDoor},
			{Direction: West, Type: ExitOpen},
			{Direction: Down, Type: ExitLocked},
		},
		Description: "A quiet staging chamber. Somewhere below, machinery hums.",
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
