package vec

import "math"

// Vec3 представляет трехмерный вектор с плавающими координатами.
// Используется для позиции, вращения (углы Эйлера в радианах) и скорости.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Zero возвращает нулевой вектор
func Zero() Vec3 {
	return Vec3{}
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает вектор на скаляр
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot возвращает скалярное произведение
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Length возвращает длину вектора
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalized возвращает единичный вектор того же направления.
// Для нулевого вектора возвращается нулевой вектор.
func (v Vec3) Normalized() Vec3 {
	length := v.Length()
	if length == 0 {
		return Vec3{}
	}
	return v.Scale(1 / length)
}

// DistanceTo возвращает евклидово расстояние до другой точки
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Length()
}

// DistanceToSegment возвращает расстояние от точки до отрезка [a, b].
// Вырожденный отрезок считается точкой a.
func (v Vec3) DistanceToSegment(a, b Vec3) float64 {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq == 0 {
		return v.DistanceTo(a)
	}
	t := v.Sub(a).Dot(ab) / lenSq
	t = math.Max(0, math.Min(1, t))
	return v.DistanceTo(a.Add(ab.Scale(t)))
}

// Equals проверяет точное равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// ApproxEquals сравнивает векторы с допуском eps по каждой оси
func (v Vec3) ApproxEquals(other Vec3, eps float64) bool {
	return math.Abs(v.X-other.X) <= eps &&
		math.Abs(v.Y-other.Y) <= eps &&
		math.Abs(v.Z-other.Z) <= eps
}

// HeadingFromRotation переводит углы Эйлера (pitch=X, yaw=Y) в вектор взгляда.
// Нулевое вращение смотрит в -Z (север).
func HeadingFromRotation(rot Vec3) Vec3 {
	cp := math.Cos(rot.X)
	return Vec3{
		X: -math.Sin(rot.Y) * cp,
		Y: math.Sin(rot.X),
		Z: -math.Cos(rot.Y) * cp,
	}
}
