// Package board holds the chain reaction grid and the cascade resolver.
package board

import (
	"errors"
	"fmt"
)

// PlayerIndex identifies a player on the board. Indexes start at 1; NoPlayer
// marks an empty cell.
type PlayerIndex uint8

const NoPlayer PlayerIndex = 0

// MaxPlayers is the highest index a cell owner can carry.
const MaxPlayers = 8

var (
	ErrOutOfBounds = errors.New("cell out of bounds")
	ErrInvalidCell = errors.New("invalid cell")
)

// Cell is one grid square: who owns it and how many atoms it holds.
type Cell struct {
	Owner PlayerIndex
	Atoms int
}

// Empty reports whether nobody owns the cell.
func (c Cell) Empty() bool {
	return c.Owner == NoPlayer
}

func (c Cell) valid() bool {
	if c.Atoms < 0 || c.Owner > MaxPlayers {
		return false
	}
	return (c.Owner == NoPlayer) == (c.Atoms == 0)
}

// Position addresses a cell.
type Position struct {
	Row int
	Col int
}

// Board is a fixed-size grid stored row-major. The zero Board has no cells.
// Board values share their backing array; use Clone before mutating a board
// that someone else may still read.
type Board struct {
	rows  int
	cols  int
	cells []Cell
}

// New returns an empty rows×cols board. Both dimensions must be at least 2 so
// that every cell has a non-zero critical mass.
func New(rows, cols int) (Board, error) {
	if rows < 2 || cols < 2 {
		return Board{}, fmt.Errorf("board must be at least 2x2, got %dx%d", rows, cols)
	}
	return Board{rows: rows, cols: cols, cells: make([]Cell, rows*cols)}, nil
}

// FromCells builds a board from row-major cells, validating every cell.
func FromCells(rows, cols int, cells []Cell) (Board, error) {
	b, err := New(rows, cols)
	if err != nil {
		return Board{}, err
	}
	if len(cells) != rows*cols {
		return Board{}, fmt.Errorf("expected %d cells, got %d", rows*cols, len(cells))
	}
	for i, c := range cells {
		if !c.valid() {
			return Board{}, fmt.Errorf("cell %d: %w", i, ErrInvalidCell)
		}
	}
	copy(b.cells, cells)
	return b, nil
}

func (b Board) Rows() int { return b.rows }
func (b Board) Cols() int { return b.cols }

// InBounds reports whether (row, col) lies on the board.
func (b Board) InBounds(row, col int) bool {
	return row >= 0 && row < b.rows && col >= 0 && col < b.cols
}

func (b Board) index(row, col int) int {
	return row*b.cols + col
}

func (b Board) Get(row, col int) (Cell, error) {
	if !b.InBounds(row, col) {
		return Cell{}, fmt.Errorf("get (%d,%d): %w", row, col, ErrOutOfBounds)
	}
	return b.cells[b.index(row, col)], nil
}

// Set replaces a cell. The cell must respect owner == NoPlayer ⟺ atoms == 0.
func (b Board) Set(row, col int, c Cell) error {
	if !b.InBounds(row, col) {
		return fmt.Errorf("set (%d,%d): %w", row, col, ErrOutOfBounds)
	}
	if !c.valid() {
		return fmt.Errorf("set (%d,%d) owner=%d atoms=%d: %w", row, col, c.Owner, c.Atoms, ErrInvalidCell)
	}
	b.cells[b.index(row, col)] = c
	return nil
}

// Neighbors returns the in-bounds orthogonal neighbours in the fixed order
// up, down, left, right.
func (b Board) Neighbors(row, col int) []Position {
	out := make([]Position, 0, 4)
	for _, d := range [4]Position{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		r, c := row+d.Row, col+d.Col
		if b.InBounds(r, c) {
			out = append(out, Position{Row: r, Col: c})
		}
	}
	return out
}

// CriticalMass is the atom count at which a cell explodes: its number of
// in-bounds neighbours (corner 2, edge 3, interior 4).
func (b Board) CriticalMass(row, col int) int {
	n := 0
	if row > 0 {
		n++
	}
	if row < b.rows-1 {
		n++
	}
	if col > 0 {
		n++
	}
	if col < b.cols-1 {
		n++
	}
	return n
}

// Cells returns a row-major copy of the grid.
func (b Board) Cells() []Cell {
	out := make([]Cell, len(b.cells))
	copy(out, b.cells)
	return out
}

func (b Board) Clone() Board {
	return Board{rows: b.rows, cols: b.cols, cells: b.Cells()}
}

func (b Board) TotalAtoms() int {
	total := 0
	for _, c := range b.cells {
		total += c.Atoms
	}
	return total
}

// CellCounts returns how many cells each player owns, keyed by index.
func (b Board) CellCounts() map[PlayerIndex]int {
	counts := make(map[PlayerIndex]int)
	for _, c := range b.cells {
		if !c.Empty() {
			counts[c.Owner]++
		}
	}
	return counts
}

// Settled reports whether no cell is at or above its critical mass.
func (b Board) Settled() bool {
	for i, c := range b.cells {
		if c.Atoms >= b.CriticalMass(i/b.cols, i%b.cols) {
			return false
		}
	}
	return true
}
