package combat

import (
	"github.com/annel0/descent/internal/world"
)

// Slot слот стрельбы
type Slot = Category

// Стартовый боезапас нового корабля
const (
	startingConcussion = 3
	startingEnergy     = 100
)

// Inventory боевая раскладка игрока. Не потокобезопасен: у инвентаря
// один владелец (сессия), как и у состояния игрока.
type Inventory struct {
	unlocked  map[string]struct{}
	primary   string
	secondary string // пусто: вторичное оружие не выбрано
	ammo      map[string]int
	powerUps  []world.ActivePowerUp
}

func newEmptyInventory() *Inventory {
	inv := &Inventory{
		unlocked: map[string]struct{}{BaseWeapon: {}},
		primary:  BaseWeapon,
		ammo:     make(map[string]int, len(ammoOrder)),
	}
	for _, a := range ammoOrder {
		inv.ammo[a] = 0
	}
	return inv
}

// NewInventory создаёт стартовую раскладку: лазер и ракеты concussion
func NewInventory() *Inventory {
	inv := newEmptyInventory()
	inv.UnlockWeapon(WeaponConcussion)
	inv.AddAmmo(AmmoConcussion, startingConcussion)
	inv.AddAmmo(AmmoEnergy, startingEnergy)
	return inv
}

// weaponsOf открытое оружие категории в порядке каталога
func (inv *Inventory) weaponsOf(c Category) []Weapon {
	var out []Weapon
	for _, w := range weapons {
		if w.Category != c {
			continue
		}
		if _, ok := inv.unlocked[w.ID]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Primaries открытое основное оружие в порядке слотов
func (inv *Inventory) Primaries() []Weapon {
	return inv.weaponsOf(Primary)
}

// Secondaries открытое вторичное оружие в порядке слотов
func (inv *Inventory) Secondaries() []Weapon {
	return inv.weaponsOf(Secondary)
}

func indexOf(list []Weapon, id string) int {
	for i, w := range list {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// PrimaryIndex индекс выбранного основного оружия среди открытых
func (inv *Inventory) PrimaryIndex() int {
	return indexOf(inv.Primaries(), inv.primary)
}

// SecondaryIndex индекс выбранного вторичного оружия; -1 если не выбрано
func (inv *Inventory) SecondaryIndex() int {
	if inv.secondary == "" {
		return -1
	}
	return indexOf(inv.Secondaries(), inv.secondary)
}

// SelectPrimary выбирает основное оружие по индексу среди открытых.
// Индекс вне диапазона игнорируется.
func (inv *Inventory) SelectPrimary(index int) bool {
	list := inv.Primaries()
	if index < 0 || index >= len(list) {
		return false
	}
	inv.primary = list[index].ID
	return true
}

// SelectSecondary выбирает вторичное оружие; -1 снимает выбор.
// Индекс вне диапазона игнорируется.
func (inv *Inventory) SelectSecondary(index int) bool {
	if index == -1 {
		inv.secondary = ""
		return true
	}
	list := inv.Secondaries()
	if index < 0 || index >= len(list) {
		return false
	}
	inv.secondary = list[index].ID
	return true
}

// PrimaryWeapon выбранное основное оружие
func (inv *Inventory) PrimaryWeapon() Weapon {
	return weaponIndex[inv.primary]
}

// SecondaryWeapon выбранное вторичное оружие
func (inv *Inventory) SecondaryWeapon() (Weapon, bool) {
	if inv.secondary == "" {
		return Weapon{}, false
	}
	return weaponIndex[inv.secondary], true
}

// HasWeapon сообщает, открыто ли оружие
func (inv *Inventory) HasWeapon(id string) bool {
	_, ok := inv.unlocked[id]
	return ok
}

// UnlockWeapon открывает оружие из каталога. Возвращает false для
// неизвестного или уже открытого оружия. Первое вторичное оружие
// выбирается автоматически.
func (inv *Inventory) UnlockWeapon(id string) bool {
	w, ok := weaponIndex[id]
	if !ok || inv.HasWeapon(id) {
		return false
	}
	inv.unlocked[id] = struct{}{}
	if w.Category == Secondary && inv.secondary == "" {
		inv.secondary = id
	}
	return true
}

// Ammo текущий запас типа
func (inv *Inventory) Ammo(ammoType string) int {
	return inv.ammo[ammoType]
}

// MaxAmmo максимальный запас типа
func (inv *Inventory) MaxAmmo(ammoType string) int {
	return MaxAmmo(ammoType)
}

// UseAmmo списывает amount боеприпасов. При нехватке возвращает false
// и ничего не меняет.
func (inv *Inventory) UseAmmo(ammoType string, amount int) bool {
	cur, ok := inv.ammo[ammoType]
	if !ok || amount < 0 || cur < amount {
		return false
	}
	inv.ammo[ammoType] = cur - amount
	return true
}

// AddAmmo добавляет боеприпасы с ограничением по максимуму.
// Неизвестный тип и неположительное количество игнорируются.
func (inv *Inventory) AddAmmo(ammoType string, amount int) {
	cur, ok := inv.ammo[ammoType]
	if !ok || amount <= 0 {
		return
	}
	inv.ammo[ammoType] = clampInt(cur+amount, 0, maxAmmo[ammoType])
}

// CanFire проверяет, хватает ли боеприпасов на выстрел из слота
func (inv *Inventory) CanFire(slot Slot) bool {
	w, ok := inv.weaponIn(slot)
	if !ok {
		return false
	}
	return w.Infinite() || inv.ammo[w.AmmoType] >= w.AmmoPerShot
}

// Fire производит выстрел из слота, списывая боеприпасы
func (inv *Inventory) Fire(slot Slot) (Weapon, bool) {
	w, ok := inv.weaponIn(slot)
	if !ok {
		return Weapon{}, false
	}
	if !w.Infinite() && !inv.UseAmmo(w.AmmoType, w.AmmoPerShot) {
		return Weapon{}, false
	}
	return w, true
}

func (inv *Inventory) weaponIn(slot Slot) (Weapon, bool) {
	switch slot {
	case Primary:
		return inv.PrimaryWeapon(), true
	case Secondary:
		return inv.SecondaryWeapon()
	}
	return Weapon{}, false
}

// ActivatePowerUp включает усиление. Уже активное усиление обновляется
// до полной длительности, а не дублируется.
func (inv *Inventory) ActivatePowerUp(powerUp string) bool {
	d, ok := powerUpDurations[powerUp]
	if !ok {
		return false
	}
	for i := range inv.powerUps {
		if inv.powerUps[i].Type == powerUp {
			inv.powerUps[i].RemainingTime = d
			return true
		}
	}
	inv.powerUps = append(inv.powerUps, world.ActivePowerUp{Type: powerUp, RemainingTime: d})
	return true
}

// UpdatePowerUps уменьшает оставшееся время на dt и удаляет истёкшие
func (inv *Inventory) UpdatePowerUps(dt float64) {
	if dt <= 0 {
		return
	}
	kept := inv.powerUps[:0]
	for _, p := range inv.powerUps {
		p.RemainingTime -= dt
		if p.RemainingTime > 0 {
			kept = append(kept, p)
		}
	}
	inv.powerUps = kept
}

// ActivePowerUps копия списка активных усилений
func (inv *Inventory) ActivePowerUps() []world.ActivePowerUp {
	return append([]world.ActivePowerUp(nil), inv.powerUps...)
}

func (inv *Inventory) powerUpActive(powerUp string) bool {
	for _, p := range inv.powerUps {
		if p.Type == powerUp {
			return true
		}
	}
	return false
}

// DamageMultiplier множитель урона игрока
func (inv *Inventory) DamageMultiplier() float64 {
	if inv.powerUpActive(PowerUpQuadDamage) {
		return QuadDamageMultiplier
	}
	return 1
}

// IsInvulnerable активна ли неуязвимость
func (inv *Inventory) IsInvulnerable() bool {
	return inv.powerUpActive(PowerUpInvulnerability)
}

// IsInvisible активна ли маскировка
func (inv *Inventory) IsInvisible() bool {
	return inv.powerUpActive(PowerUpCloak)
}

// ApplyPickup применяет к инвентарю предмет: боеприпасы, оружие или
// усиление. Для прочих видов возвращает false.
func (inv *Inventory) ApplyPickup(p world.Pickup) bool {
	switch p.Kind {
	case world.PickupAmmo:
		if _, ok := inv.ammo[p.Item]; !ok {
			return false
		}
		inv.AddAmmo(p.Item, p.Amount)
		return true
	case world.PickupWeapon:
		w, ok := weaponIndex[p.Item]
		if !ok {
			return false
		}
		if !inv.UnlockWeapon(p.Item) {
			// повторное оружие даёт боеприпасы
			if w.Infinite() {
				return false
			}
			inv.AddAmmo(w.AmmoType, w.AmmoPerShot*10)
		}
		return true
	case world.PickupQuadDamage, world.PickupInvulnerability, world.PickupCloak:
		return inv.ActivatePowerUp(string(p.Kind))
	}
	return false
}

// Serialize снимок инвентаря для сохранения
func (inv *Inventory) Serialize() world.InventoryData {
	data := world.InventoryData{
		UnlockedWeapons: make([]string, 0, len(inv.unlocked)),
		PrimaryIndex:    inv.PrimaryIndex(),
		SecondaryIndex:  inv.SecondaryIndex(),
		Ammo:            make(map[string]int, len(inv.ammo)),
		ActivePowerUps:  inv.ActivePowerUps(),
	}
	for _, w := range weapons {
		if inv.HasWeapon(w.ID) {
			data.UnlockedWeapons = append(data.UnlockedWeapons, w.ID)
		}
	}
	for k, v := range inv.ammo {
		data.Ammo[k] = v
	}
	if data.ActivePowerUps == nil {
		data.ActivePowerUps = []world.ActivePowerUp{}
	}
	return data
}

// Deserialize восстанавливает инвентарь из снимка. Базовое оружие
// добавляется всегда; неизвестные записи отбрасываются, запасы и
// индексы приводятся к допустимым диапазонам.
func Deserialize(data world.InventoryData) *Inventory {
	inv := newEmptyInventory()
	for _, id := range data.UnlockedWeapons {
		if _, ok := weaponIndex[id]; ok {
			inv.unlocked[id] = struct{}{}
		}
	}

	primaries := inv.Primaries()
	inv.primary = primaries[clampInt(data.PrimaryIndex, 0, len(primaries)-1)].ID

	secondaries := inv.Secondaries()
	if si := clampInt(data.SecondaryIndex, -1, len(secondaries)-1); si >= 0 {
		inv.secondary = secondaries[si].ID
	}

	for k, v := range data.Ammo {
		if limit, ok := maxAmmo[k]; ok {
			inv.ammo[k] = clampInt(v, 0, limit)
		}
	}

	for _, p := range data.ActivePowerUps {
		full, ok := powerUpDurations[p.Type]
		if !ok || p.RemainingTime <= 0 {
			continue
		}
		remaining := p.RemainingTime
		if remaining > full {
			remaining = full
		}
		if i := inv.powerUpIndex(p.Type); i >= 0 {
			if remaining > inv.powerUps[i].RemainingTime {
				inv.powerUps[i].RemainingTime = remaining
			}
			continue
		}
		inv.powerUps = append(inv.powerUps, world.ActivePowerUp{Type: p.Type, RemainingTime: remaining})
	}
	return inv
}

func (inv *Inventory) powerUpIndex(powerUp string) int {
	for i, p := range inv.powerUps {
		if p.Type == powerUp {
			return i
		}
	}
	return -1
}

// Normalize приводит присланные клиентом данные инвентаря к допустимому виду
func Normalize(data world.InventoryData) world.InventoryData {
	return Deserialize(data).Serialize()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
