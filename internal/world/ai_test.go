package world

import (
	"testing"

	"github.com/annel0/descent/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnemy(kind EnemyKind, pos vec.Vec3) *Enemy {
	return &Enemy{ID: "e1", Kind: kind, Position: pos, Health: 50, MaxHealth: 50, AIState: AIIdle}
}

func TestStepEnemy_DetectsVisiblePlayer(t *testing.T) {
	e := newEnemy(EnemyDrone, vec.Vec3{})
	player := vec.Vec3{Z: -25}

	assert.Nil(t, StepEnemy(e, player, true, 0.1))
	assert.Equal(t, AIAlert, e.AIState)

	// Сближается с игроком
	before := e.Position.DistanceTo(player)
	StepEnemy(e, player, true, 0.5)
	assert.Less(t, e.Position.DistanceTo(player), before)
}

func TestStepEnemy_CloakHidesPlayer(t *testing.T) {
	e := newEnemy(EnemyDrone, vec.Vec3{})
	StepEnemy(e, vec.Vec3{Z: -5}, false, 0.1)
	assert.Equal(t, AIIdle, e.AIState)

	e.AIState = AIAttack
	StepEnemy(e, vec.Vec3{Z: -5}, false, 0.1)
	assert.Equal(t, AIPatrol, e.AIState, "потеряв цель, противник возвращается к патрулю")
}

func TestStepEnemy_AttackFiresWithCooldown(t *testing.T) {
	e := newEnemy(EnemyTurret, vec.Vec3{})
	e.AIState = AIAlert
	player := vec.Vec3{X: 10}

	p := StepEnemy(e, player, true, 0.1)
	assert.Equal(t, AIAttack, e.AIState)
	require.NotNil(t, p, "турель стреляет сразу после перехода в атаку")
	assert.Equal(t, e.ID, p.OwnerID)
	assert.Greater(t, p.Damage, 0.0)
	assert.True(t, p.Velocity.Normalized().ApproxEquals(vec.Vec3{X: 1}, 1e-9))
	assert.True(t, vec.HeadingFromRotation(e.Rotation).ApproxEquals(vec.Vec3{X: 1}, 1e-9))

	assert.Nil(t, StepEnemy(e, player, true, 0.1), "перезарядка")

	prof := ProfileFor(EnemyTurret)
	assert.NotNil(t, StepEnemy(e, player, true, prof.FireInterval))
}

func TestStepEnemy_Dead(t *testing.T) {
	e := newEnemy(EnemyHunter, vec.Vec3{})
	e.Health = 0
	assert.Nil(t, StepEnemy(e, vec.Vec3{X: 1}, true, 0.1))
	assert.Equal(t, AIDead, e.AIState)
	assert.False(t, e.Alive())

	pos := e.Position
	StepEnemy(e, vec.Vec3{X: 1}, true, 1)
	assert.Equal(t, pos, e.Position)
}

func TestProjectile_Step(t *testing.T) {
	p := &Projectile{Velocity: vec.Vec3{X: 10}, Lifetime: 0.25}
	assert.True(t, p.Step(0.1))
	assert.InDelta(t, 1.0, p.Position.X, 1e-9)
	assert.False(t, p.Step(0.2))
}
