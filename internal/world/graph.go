package world

import "fmt"

// GraphViolation нарушение двусторонней согласованности графа
type GraphViolation struct {
	AreaID    string
	Direction Direction
	Reason    string
}

func (v GraphViolation) String() string {
	return fmt.Sprintf("%s/%s: %s", v.AreaID, v.Direction, v.Reason)
}

// ValidateGraph проверяет, что каждый исследованный выход ведёт в
// существующую зону, чей противоположный выход указывает обратно.
// Возвращает все найденные нарушения (пустой срез: граф согласован).
func ValidateGraph(areas map[string]*Area) []GraphViolation {
	var out []GraphViolation
	for id, a := range areas {
		for _, e := range a.Exits {
			if !e.Explored() {
				continue
			}
			target, ok := areas[e.Target()]
			if !ok {
				out = append(out, GraphViolation{id, e.Direction, "target " + e.Target() + " does not exist"})
				continue
			}
			back, ok := target.Exit(e.Direction.Opposite())
			if !ok {
				out = append(out, GraphViolation{id, e.Direction, "target has no opposite exit"})
				continue
			}
			if back.Explored() && back.Target() != id {
				out = append(out, GraphViolation{id, e.Direction, "opposite exit points to " + back.Target()})
			}
			if !back.Explored() {
				out = append(out, GraphViolation{id, e.Direction, "opposite exit is unresolved"})
			}
		}
	}
	return out
}

// Reachable возвращает id зон, достижимых из start по исследованным выходам
func Reachable(areas map[string]*Area, start string) map[string]struct{} {
	seen := make(map[string]struct{})
	if _, ok := areas[start]; !ok {
		return seen
	}
	queue := []string{start}
	seen[start] = struct{}{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range areas[cur].Exits {
			next := e.Target()
			if next == "" {
				continue
			}
			if _, ok := areas[next]; !ok {
				continue
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return seen
}
