package game

import "encoding/json"

// Mark is the content of one board cell.
type Mark byte

// Cell contents.
const (
	Empty Mark = iota
	X
	O
)

// String returns "X", "O" or "".
func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// MarshalJSON encodes an empty cell as null and a mark as its letter.
func (m Mark) MarshalJSON() ([]byte, error) {
	if m == Empty {
		return []byte("null"), nil
	}
	return json.Marshal(m.String())
}

// BoardSize is the number of cells.
const BoardSize = 9

// Board is a 3x3 grid in row-major order.
type Board [BoardSize]Mark

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the mark occupying a full line, or Empty.
func Winner(b Board) Mark {
	for _, line := range winLines {
		m := b[line[0]]
		if m != Empty && m == b[line[1]] && m == b[line[2]] {
			return m
		}
	}
	return Empty
}

// Full reports whether every cell is marked.
func Full(b Board) bool {
	for _, m := range b {
		if m == Empty {
			return false
		}
	}
	return true
}

// markFor returns the mark of the player at seat index.
func markFor(index int) Mark {
	if index == 0 {
		return X
	}
	return O
}
