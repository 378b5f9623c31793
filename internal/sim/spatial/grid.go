package spatial

import (
	"math"
	"sort"
)

// Vec3 is a world position. Interaction scope is horizontal: distance is
// computed on X/Y and Z is carried through for clients only.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) DistanceTo(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

type cellKey struct{ cx, cy int }

type entry struct {
	pos  Vec3
	cell cellKey
}

// Member is one index entry returned by a radius query.
type Member struct {
	ID   string
	Pos  Vec3
	Dist float64
}

// Grid is a uniform-bucket index for a single region. The cell size should
// sit near the smallest finite interaction radius so a radius query scans a
// handful of cells instead of the whole region. Upsert and Remove are O(1);
// QueryRadius is proportional to the cells touched.
//
// Grid is not goroutine-safe: it is owned by the engine loop.
type Grid struct {
	cell    float64
	cells   map[cellKey]map[string]struct{}
	entries map[string]entry
}

func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 8
	}
	return &Grid{
		cell:    cellSize,
		cells:   map[cellKey]map[string]struct{}{},
		entries: map[string]entry{},
	}
}

func (g *Grid) keyFor(pos Vec3) cellKey {
	return cellKey{
		cx: int(math.Floor(pos.X / g.cell)),
		cy: int(math.Floor(pos.Y / g.cell)),
	}
}

func (g *Grid) Upsert(id string, pos Vec3) {
	key := g.keyFor(pos)
	if e, ok := g.entries[id]; ok {
		if e.cell == key {
			g.entries[id] = entry{pos: pos, cell: key}
			return
		}
		g.removeFromCell(id, e.cell)
	}
	bucket := g.cells[key]
	if bucket == nil {
		bucket = map[string]struct{}{}
		g.cells[key] = bucket
	}
	bucket[id] = struct{}{}
	g.entries[id] = entry{pos: pos, cell: key}
}

func (g *Grid) Remove(id string) {
	e, ok := g.entries[id]
	if !ok {
		return
	}
	g.removeFromCell(id, e.cell)
	delete(g.entries, id)
}

func (g *Grid) removeFromCell(id string, key cellKey) {
	if bucket := g.cells[key]; bucket != nil {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(g.cells, key)
		}
	}
}

func (g *Grid) Pos(id string) (Vec3, bool) {
	e, ok := g.entries[id]
	return e.pos, ok
}

func (g *Grid) Len() int { return len(g.entries) }

// QueryRadius returns all members within radius of center, ordered by
// ascending distance with ties broken by id so results are deterministic.
func (g *Grid) QueryRadius(center Vec3, radius float64) []Member {
	if radius < 0 {
		return nil
	}
	lo := g.keyFor(Vec3{X: center.X - radius, Y: center.Y - radius})
	hi := g.keyFor(Vec3{X: center.X + radius, Y: center.Y + radius})
	var out []Member
	for cx := lo.cx; cx <= hi.cx; cx++ {
		for cy := lo.cy; cy <= hi.cy; cy++ {
			for id := range g.cells[cellKey{cx: cx, cy: cy}] {
				pos := g.entries[id].pos
				d := center.DistanceTo(pos)
				if d <= radius {
					out = append(out, Member{ID: id, Pos: pos, Dist: d})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist != out[j].Dist {
			return out[i].Dist < out[j].Dist
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// All returns every member id, sorted.
func (g *Grid) All() []string {
	out := make([]string, 0, len(g.entries))
	for id := range g.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
