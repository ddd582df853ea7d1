package board

// Explosion records one cell exploding during a cascade.
type Explosion struct {
	Row    int
	Col    int
	Player PlayerIndex
}

// Decided reports whether the game played on b is over. It is consulted after
// every explosion; a true result ends the cascade where it stands.
type Decided func(b Board) bool

// Dominated decides a game once player owns every occupied cell, provided
// some other owner was present on start. It suits games where nobody can
// enter the board later.
func Dominated(start Board, player PlayerIndex) Decided {
	if !hasOtherOwner(start, player) {
		return nil
	}
	return func(b Board) bool {
		return !hasOtherOwner(b, player)
	}
}

// Resolve runs the cascade seeded at (row, col) on behalf of player and
// returns the resulting board together with the explosions in the order they
// happened. The input board is not modified.
//
// Cells waiting to explode sit in a FIFO queue; a cell is never queued twice
// at the same time. Every explosion moves exactly CriticalMass atoms into the
// neighbours, so the total atom count is preserved.
//
// Two guards stop a cascade that would otherwise never settle: decided, when
// not nil, ends resolution as soon as it reports the game over; and a hard
// cap on the number of explosions bounds boards holding more atoms than they
// can settle. Unless one of them fires the returned board is settled.
func Resolve(b Board, row, col int, player PlayerIndex, decided Decided) (Board, []Explosion) {
	work := b.Clone()
	if !work.InBounds(row, col) {
		return work, nil
	}

	limit := 4 * len(work.cells) * len(work.cells)

	queued := make([]bool, len(work.cells))
	queue := []Position{{Row: row, Col: col}}
	queued[work.index(row, col)] = true

	var events []Explosion
	for len(queue) > 0 && len(events) < limit {
		p := queue[0]
		queue = queue[1:]
		i := work.index(p.Row, p.Col)
		queued[i] = false

		cm := work.CriticalMass(p.Row, p.Col)
		if work.cells[i].Atoms < cm {
			continue
		}

		events = append(events, Explosion{Row: p.Row, Col: p.Col, Player: player})
		// Atoms above the critical mass stay behind with the exploding player.
		left := work.cells[i].Atoms - cm
		if left > 0 {
			work.cells[i] = Cell{Owner: player, Atoms: left}
		} else {
			work.cells[i] = Cell{}
		}

		for _, n := range work.Neighbors(p.Row, p.Col) {
			j := work.index(n.Row, n.Col)
			work.cells[j] = Cell{Owner: player, Atoms: work.cells[j].Atoms + 1}
			if !queued[j] && work.cells[j].Atoms >= work.CriticalMass(n.Row, n.Col) {
				queued[j] = true
				queue = append(queue, n)
			}
		}
		if left >= cm && !queued[i] {
			queued[i] = true
			queue = append(queue, p)
		}

		if decided != nil && decided(work) {
			break
		}
	}
	return work, events
}

func hasOtherOwner(b Board, player PlayerIndex) bool {
	for _, c := range b.cells {
		if !c.Empty() && c.Owner != player {
			return true
		}
	}
	return false
}
