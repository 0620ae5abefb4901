package world

import (
	"fmt"
	"strings"

	"github.com/annel0/descent/internal/vec"
)

// Direction одна из шести сторон, в которые может вести выход из зоны.
type Direction string

const (
	North Direction = "north" // -Z
	South Direction = "south" // +Z
	East  Direction = "east"  // +X
	West  Direction = "west"  // -X
	Up    Direction = "up"    // +Y
	Down  Direction = "down"  // -Y
)

var allDirections = []Direction{North, South, East, West, Up, Down}

// AllDirections возвращает все направления в фиксированном порядке
func AllDirections() []Direction {
	out := make([]Direction, len(allDirections))
	copy(out, allDirections)
	return out
}

// ParseDirection разбирает строку направления без учёта регистра
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

// Valid сообщает, входит ли направление в перечисление
func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West, Up, Down:
		return true
	}
	return false
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	case Down:
		return Up
	}
	return d
}

// Unit возвращает единичный вектор направления в мировых координатах
func (d Direction) Unit() vec.Vec3 {
	switch d {
	case North:
		return vec.Vec3{Z: -1}
	case South:
		return vec.Vec3{Z: 1}
	case East:
		return vec.Vec3{X: 1}
	case West:
		return vec.Vec3{X: -1}
	case Up:
		return vec.Vec3{Y: 1}
	case Down:
		return vec.Vec3{Y: -1}
	}
	return vec.Vec3{}
}

// Vertical сообщает, идёт ли направление по оси Y
func (d Direction) Vertical() bool {
	return d == Up || d == Down
}

func (d Direction) String() string {
	return string(d)
}
