package world

import (
	"math"

	"github.com/annel0/descent/internal/vec"
	"github.com/google/uuid"
)

// AIProfile параметры поведения вида противника
type AIProfile struct {
	DetectRange     float64
	AttackRange     float64
	LoseRange       float64
	Speed           float64
	FireInterval    float64
	ProjectileSpeed float64
	Damage          float64
}

var aiProfiles = map[EnemyKind]AIProfile{
	EnemyDrone:    {DetectRange: 30, AttackRange: 18, LoseRange: 45, Speed: 6, FireInterval: 1.5, ProjectileSpeed: 40, Damage: 4},
	EnemyHunter:   {DetectRange: 40, AttackRange: 12, LoseRange: 60, Speed: 10, FireInterval: 1.0, ProjectileSpeed: 50, Damage: 8},
	EnemyTurret:   {DetectRange: 35, AttackRange: 35, LoseRange: 40, Speed: 0, FireInterval: 0.8, ProjectileSpeed: 60, Damage: 6},
	EnemyBrood:    {DetectRange: 20, AttackRange: 4, LoseRange: 30, Speed: 12, FireInterval: 0.6, ProjectileSpeed: 20, Damage: 3},
	EnemyGuardian: {DetectRange: 25, AttackRange: 20, LoseRange: 35, Speed: 3, FireInterval: 2.5, ProjectileSpeed: 35, Damage: 20},
}

// ProfileFor возвращает профиль вида; неизвестный вид ведёт себя как дрон
func ProfileFor(kind EnemyKind) AIProfile {
	if p, ok := aiProfiles[kind]; ok {
		return p
	}
	return aiProfiles[EnemyDrone]
}

// patrolTurnRate скорость поворота при патрулировании, рад/с
const patrolTurnRate = 0.6

// StepEnemy продвигает конечный автомат противника на dt секунд.
// target позиция игрока, visible false при активной маскировке.
// Возвращает снаряд, если противник выстрелил.
func StepEnemy(e *Enemy, target vec.Vec3, visible bool, dt float64) *Projectile {
	if e.AIState == AIDead {
		return nil
	}
	if e.Health <= 0 {
		e.AIState = AIDead
		e.Velocity = vec.Zero()
		return nil
	}

	prof := ProfileFor(e.Kind)
	if e.Cooldown > 0 {
		e.Cooldown = math.Max(0, e.Cooldown-dt)
	}

	dist := e.Position.DistanceTo(target)
	toTarget := target.Sub(e.Position).Normalized()

	switch e.AIState {
	case AIIdle, AIPatrol:
		if visible && dist <= prof.DetectRange {
			e.AIState = AIAlert
		}
	case AIAlert:
		switch {
		case !visible || dist > prof.LoseRange:
			e.AIState = AIPatrol
		case dist <= prof.AttackRange:
			e.AIState = AIAttack
		}
	case AIAttack:
		switch {
		case !visible || dist > prof.LoseRange:
			e.AIState = AIPatrol
		case dist > prof.AttackRange:
			e.AIState = AIAlert
		}
	}

	switch e.AIState {
	case AIIdle:
		e.Velocity = vec.Zero()
	case AIPatrol:
		// медленно кружим вокруг текущей точки
		e.Rotation.Y += patrolTurnRate * dt
		e.Velocity = vec.HeadingFromRotation(e.Rotation).Scale(prof.Speed * 0.5)
	case AIAlert:
		e.Velocity = toTarget.Scale(prof.Speed)
		e.Rotation = rotationToward(toTarget)
	case AIAttack:
		e.Velocity = vec.Zero()
		e.Rotation = rotationToward(toTarget)
		if e.Cooldown <= 0 {
			e.Cooldown = prof.FireInterval
			return &Projectile{
				ID:       uuid.NewString(),
				OwnerID:  e.ID,
				Weapon:   string(e.Kind),
				Position: e.Position,
				Rotation: e.Rotation,
				Velocity: toTarget.Scale(prof.ProjectileSpeed),
				Damage:   prof.Damage,
				Lifetime: prof.AttackRange * 1.5 / prof.ProjectileSpeed,
			}
		}
	}
	e.Position = e.Position.Add(e.Velocity.Scale(dt))
	return nil
}

// rotationToward углы Эйлера (pitch, yaw), при которых курс совпадает с dir
func rotationToward(dir vec.Vec3) vec.Vec3 {
	if dir.Length() == 0 {
		return vec.Zero()
	}
	pitch := math.Asin(math.Max(-1, math.Min(1, dir.Y)))
	yaw := math.Atan2(-dir.X, -dir.Z)
	return vec.Vec3{X: pitch, Y: yaw}
}
