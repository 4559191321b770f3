package sim

import "hivemind/internal/world"

// Room is the single room every sim position lives in.
const Room = "sim"

var steps = [8][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}}

// grid is the terrain plus the tiles occupied by solid entities. Workers never
// block each other.
type grid struct {
	w, h  int
	wall  []bool
	solid []bool
}

func newGrid(w, h int) *grid {
	return &grid{w: w, h: h, wall: make([]bool, w*h), solid: make([]bool, w*h)}
}

func (g *grid) in(x, y int) bool { return x >= 0 && y >= 0 && x < g.w && y < g.h }
func (g *grid) idx(x, y int) int { return y*g.w + x }
func (g *grid) open(x, y int) bool {
	return g.in(x, y) && !g.wall[g.idx(x, y)] && !g.solid[g.idx(x, y)]
}

func (g *grid) pos(x, y int) world.Position { return world.Position{Room: Room, X: x, Y: y} }

// bfs walks from a and returns the number of steps to the first tile
// accepted by goal, together with the first step of that path. Only tiles
// accepted by enter are walked; a itself is always allowed.
func (g *grid) bfs(a world.Position, goal, enter func(x, y int) bool) (int, world.Position, bool) {
	if a.Room != Room || !g.in(a.X, a.Y) {
		return 0, a, false
	}
	if goal(a.X, a.Y) {
		return 0, a, true
	}
	n := g.w * g.h
	dist := make([]int32, n)
	first := make([]int32, n)
	for i := range dist {
		dist[i] = -1
	}
	start := g.idx(a.X, a.Y)
	dist[start] = 0
	first[start] = -1
	queue := make([]int32, 0, 64)
	queue = append(queue, int32(start))
	for len(queue) > 0 {
		cur := int(queue[0])
		queue = queue[1:]
		cx, cy := cur%g.w, cur/g.w
		for _, d := range steps {
			nx, ny := cx+d[0], cy+d[1]
			if !g.in(nx, ny) {
				continue
			}
			ni := g.idx(nx, ny)
			if dist[ni] >= 0 || !enter(nx, ny) {
				continue
			}
			dist[ni] = dist[cur] + 1
			if cur == start {
				first[ni] = int32(ni)
			} else {
				first[ni] = first[cur]
			}
			if goal(nx, ny) {
				f := int(first[ni])
				return int(dist[ni]), g.pos(f%g.w, f/g.w), true
			}
			queue = append(queue, int32(ni))
		}
	}
	return 0, a, false
}

// distance is the walking distance between two tiles. Either endpoint may be
// a solid tile; unreachable pairs are world.FarAway apart.
func (g *grid) distance(a, b world.Position) int {
	if a.Room != b.Room {
		return world.FarAway
	}
	goal := func(x, y int) bool { return x == b.X && y == b.Y }
	d, _, ok := g.bfs(a, goal, func(x, y int) bool { return goal(x, y) || g.open(x, y) })
	if !ok {
		return world.FarAway
	}
	return d
}

// reachable marks every open tile connected to p.
func (g *grid) reachable(p world.Position) []bool {
	seen := make([]bool, g.w*g.h)
	if !g.in(p.X, p.Y) {
		return seen
	}
	seen[g.idx(p.X, p.Y)] = true
	g.bfs(p, func(int, int) bool { return false }, func(x, y int) bool {
		if g.open(x, y) {
			seen[g.idx(x, y)] = true
			return true
		}
		return false
	})
	return seen
}

// around lists open tiles at exactly range 1 of p, in a fixed order.
func (g *grid) around(p world.Position) []world.Position {
	var out []world.Position
	for _, d := range steps {
		if x, y := p.X+d[0], p.Y+d[1]; g.open(x, y) {
			out = append(out, g.pos(x, y))
		}
	}
	return out
}
