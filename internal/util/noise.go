package util

import (
	"github.com/aquilax/go-perlin"
)

// Параметры шума Перлина
const (
	noiseAlpha   = 2.0 // Сглаживание шума
	noiseBeta    = 2.0 // Частота шума
	noiseOctaves = 3   // Количество октав
)

// Noise генератор шума Перлина с фиксированным сидом.
// perlin.Perlin только читает свои таблицы после создания, поэтому
// один экземпляр можно использовать из нескольких горутин.
type Noise struct {
	p     *perlin.Perlin
	scale float64
}

// NewNoise создаёт генератор шума. scale масштабирует мировые координаты.
func NewNoise(seed int64, scale float64) *Noise {
	if scale <= 0 {
		scale = 0.02
	}
	return &Noise{
		p:     perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed),
		scale: scale,
	}
}

// At3D возвращает значение шума для точки (от 0 до 1)
func (n *Noise) At3D(x, y, z float64) float64 {
	// Получаем значение шума (примерно от -1 до 1)
	v := n.p.Noise3D(x*n.scale, y*n.scale, z*n.scale)

	// Преобразуем в диапазон от 0 до 1
	v = (v + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
