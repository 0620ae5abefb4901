package game

import (
	"sort"
	"sync"

	"github.com/annel0/descent/internal/combat"
	"github.com/annel0/descent/internal/world"
)

// Радиусы взаимодействия с игроком
const (
	projectileHitRadius = 1.5
	pickupRadius        = 2.0
)

// Очки за прогресс. Счёт сессии ведёт сервер.
const (
	AreaScore = 10
	KillScore = 100
)

// Shot выстрел игрока по противнику за прошедший тик
type Shot struct {
	Slot     combat.Slot `json:"slot"`
	TargetID string      `json:"targetId"`
}

// tickReport итог одного тика симуляции
type tickReport struct {
	combat      bool
	damageTaken float64
	kills       int
	collected   []world.Pickup
}

// runtime активное состояние сессии в памяти процесса: граф зон и
// временные сущности. Противники, снаряды и предметы не сохраняются.
type runtime struct {
	mu          sync.Mutex
	session     *world.Session
	player      *world.PlayerState
	manager     *world.Manager
	enemies     map[string]*world.Enemy
	pickups     map[string]world.Pickup
	projectiles []*world.Projectile
}

func newRuntime(session *world.Session, player *world.PlayerState) *runtime {
	return &runtime{
		session: session,
		player:  player,
		enemies: make(map[string]*world.Enemy),
		pickups: make(map[string]world.Pickup),
	}
}

// addContent регистрирует противников и предметы новой зоны
func (rt *runtime) addContent(result *world.GenerationResult) {
	for i := range result.Enemies {
		e := result.Enemies[i]
		rt.enemies[e.ID] = &e
	}
	for _, p := range result.PowerUps {
		rt.pickups[p.ID] = p
	}
}

func (rt *runtime) enemiesIn(areaID string) []world.Enemy {
	out := make([]world.Enemy, 0)
	for _, e := range rt.enemies {
		if e.AreaID == areaID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (rt *runtime) pickupsIn(areaID string) []world.Pickup {
	out := make([]world.Pickup, 0)
	for _, p := range rt.pickups {
		if p.AreaID == areaID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (rt *runtime) projectilesSnapshot() []world.Projectile {
	out := make([]world.Projectile, 0, len(rt.projectiles))
	for _, p := range rt.projectiles {
		out = append(out, *p)
	}
	return out
}

// tick продвигает сущности зоны игрока на dt секунд: выстрелы игрока,
// автоматы противников, снаряды и подбор предметов. Вызывается под rt.mu.
func (rt *runtime) tick(ps *world.PlayerState, inv *combat.Inventory, shots []Shot, dt float64) tickReport {
	var rep tickReport

	for _, shot := range shots {
		target, ok := rt.enemies[shot.TargetID]
		if !ok || !target.Alive() || target.AreaID != ps.CurrentAreaID {
			continue
		}
		w, ok := inv.Fire(shot.Slot)
		if !ok {
			continue
		}
		rep.combat = true
		if w.Range > 0 && ps.Position.DistanceTo(target.Position) > w.Range {
			continue
		}
		target.Health -= w.Damage * inv.DamageMultiplier()
		if target.Health <= 0 {
			target.Health = 0
			target.AIState = world.AIDead
			rep.kills++
		}
	}

	visible := !inv.IsInvisible()
	ids := make([]string, 0, len(rt.enemies))
	for id := range rt.enemies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := rt.enemies[id]
		if !e.Alive() {
			delete(rt.enemies, id)
			continue
		}
		if e.AreaID != ps.CurrentAreaID {
			continue
		}
		if p := world.StepEnemy(e, ps.Position, visible, dt); p != nil {
			rt.projectiles = append(rt.projectiles, p)
		}
		if e.AIState == world.AIAttack {
			rep.combat = true
		}
	}

	alive := rt.projectiles[:0]
	for _, p := range rt.projectiles {
		// попадание проверяется по всему пути за тик, иначе быстрый
		// снаряд пролетает сквозь игрока между двумя синхронизациями
		from := p.Position
		live := p.Step(dt)
		if ps.Alive() && ps.Position.DistanceToSegment(from, p.Position) <= projectileHitRadius {
			rep.damageTaken += combat.ApplyDamage(ps, inv, p.Damage)
			rep.combat = true
			continue
		}
		if live {
			alive = append(alive, p)
		}
	}
	rt.projectiles = alive

	for _, p := range rt.pickupsIn(ps.CurrentAreaID) {
		if p.Position.DistanceTo(ps.Position) > pickupRadius {
			continue
		}
		if combat.ApplyPickup(ps, inv, p) {
			delete(rt.pickups, p.ID)
			rep.collected = append(rep.collected, p)
		}
	}
	return rep
}
