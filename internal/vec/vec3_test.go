package vec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3_Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: -4, Y: 0.5, Z: 2}

	assert.Equal(t, Vec3{X: -3, Y: 2.5, Z: 5}, a.Add(b))
	assert.Equal(t, Vec3{X: 5, Y: 1.5, Z: 1}, a.Sub(b))
	assert.Equal(t, Vec3{X: 2, Y: 4, Z: 6}, a.Scale(2))
	assert.Equal(t, -4+1+6.0, a.Dot(b))
}

func TestVec3_Normalized(t *testing.T) {
	v := Vec3{X: 3, Y: 0, Z: 4}
	n := v.Normalized()
	assert.InDelta(t, 1.0, n.Length(), 1e-9, "Длина нормализованного вектора должна быть 1")
	assert.InDelta(t, 5.0, v.Length(), 1e-9)

	// Нулевой вектор остаётся нулевым
	assert.Equal(t, Vec3{}, Zero().Normalized())
}

func TestVec3_DistanceTo(t *testing.T) {
	a := Vec3{X: 1, Y: 1, Z: 1}
	b := Vec3{X: 1, Y: 4, Z: 5}
	assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-9)
	assert.InDelta(t, 5.0, b.DistanceTo(a), 1e-9)
}

func TestVec3_DistanceToSegment(t *testing.T) {
	a := Vec3{Z: 9}
	b := Vec3{Z: 3}

	// Точка за концом отрезка: расстояние до ближайшего конца
	assert.InDelta(t, 3.0, Vec3{}.DistanceToSegment(a, b), 1e-9)

	// Отрезок проходит сквозь точку
	assert.InDelta(t, 0.0, Vec3{Z: 5}.DistanceToSegment(a, b), 1e-9)

	// Перпендикуляр к середине
	assert.InDelta(t, 2.0, Vec3{X: 2, Z: 6}.DistanceToSegment(a, b), 1e-9)

	// Вырожденный отрезок
	assert.InDelta(t, 5.0, Vec3{X: 3, Y: 4}.DistanceToSegment(Vec3{}, Vec3{}), 1e-9)
}

func TestHeadingFromRotation(t *testing.T) {
	// Без вращения смотрим на север (-Z)
	h := HeadingFromRotation(Vec3{})
	assert.True(t, h.ApproxEquals(Vec3{Z: -1}, 1e-9), "ожидался -Z, получено %+v", h)

	// Поворот на 90° по yaw: смотрим на запад (-X)
	h = HeadingFromRotation(Vec3{Y: math.Pi / 2})
	assert.True(t, h.ApproxEquals(Vec3{X: -1}, 1e-9), "ожидался -X, получено %+v", h)

	// Pitch вверх на 90°
	h = HeadingFromRotation(Vec3{X: math.Pi / 2})
	assert.True(t, h.ApproxEquals(Vec3{Y: 1}, 1e-9), "ожидался +Y, получено %+v", h)
}
