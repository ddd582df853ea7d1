package sqlite

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"chainreaction/domain/board"
	"chainreaction/domain/match"
)

// Snapshot blob field numbers. The blob is protobuf wire format so new
// fields can be added without breaking rows written by older servers.
const (
	fieldRoomID    protowire.Number = 1
	fieldStatus    protowire.Number = 2
	fieldTurn      protowire.Number = 3
	fieldWinner    protowire.Number = 4
	fieldVersion   protowire.Number = 5
	fieldRows      protowire.Number = 6
	fieldCols      protowire.Number = 7
	fieldPlayer    protowire.Number = 8
	fieldCells     protowire.Number = 9
	fieldPlacement protowire.Number = 10
)

const (
	playerFieldID       protowire.Number = 1
	playerFieldName     protowire.Number = 2
	playerFieldIndex    protowire.Number = 3
	playerFieldHasMoved protowire.Number = 4
)

// A cell packs as atoms<<4 | owner.
const ownerBits = 4

func encodeSnapshot(snap match.Snapshot) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRoomID, protowire.BytesType)
	b = protowire.AppendString(b, snap.RoomID)
	b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(snap.Status))
	if snap.TurnPlayerID != "" {
		b = protowire.AppendTag(b, fieldTurn, protowire.BytesType)
		b = protowire.AppendString(b, snap.TurnPlayerID)
	}
	b = protowire.AppendTag(b, fieldWinner, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(snap.Winner))
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, snap.Version)
	b = protowire.AppendTag(b, fieldRows, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(snap.Rows))
	b = protowire.AppendTag(b, fieldCols, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(snap.Cols))
	for _, p := range snap.Players {
		b = protowire.AppendTag(b, fieldPlayer, protowire.BytesType)
		b = protowire.AppendBytes(b, encodePlayer(p))
	}
	var cells []byte
	for _, c := range snap.Cells {
		cells = protowire.AppendVarint(cells, uint64(c.Atoms)<<ownerBits|uint64(c.Owner))
	}
	b = protowire.AppendTag(b, fieldCells, protowire.BytesType)
	b = protowire.AppendBytes(b, cells)
	b = protowire.AppendTag(b, fieldPlacement, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(snap.Placement))
	return b
}

func encodePlayer(p match.PlayerSlot) []byte {
	var b []byte
	b = protowire.AppendTag(b, playerFieldID, protowire.BytesType)
	b = protowire.AppendString(b, p.ID)
	b = protowire.AppendTag(b, playerFieldName, protowire.BytesType)
	b = protowire.AppendString(b, p.DisplayName)
	b = protowire.AppendTag(b, playerFieldIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Index))
	b = protowire.AppendTag(b, playerFieldHasMoved, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(p.HasMoved))
	return b
}

func decodeSnapshot(b []byte) (match.Snapshot, error) {
	var snap match.Snapshot
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return match.Snapshot{}, fmt.Errorf("decode snapshot tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return match.Snapshot{}, fmt.Errorf("decode snapshot field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldStatus:
				snap.Status = match.Status(v)
			case fieldWinner:
				snap.Winner = board.PlayerIndex(v)
			case fieldVersion:
				snap.Version = v
			case fieldRows:
				snap.Rows = int(v)
			case fieldCols:
				snap.Cols = int(v)
			case fieldPlacement:
				snap.Placement = match.Placement(v)
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return match.Snapshot{}, fmt.Errorf("decode snapshot field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldRoomID:
				snap.RoomID = string(v)
			case fieldTurn:
				snap.TurnPlayerID = string(v)
			case fieldPlayer:
				p, err := decodePlayer(v)
				if err != nil {
					return match.Snapshot{}, err
				}
				snap.Players = append(snap.Players, p)
			case fieldCells:
				cells, err := decodeCells(v)
				if err != nil {
					return match.Snapshot{}, err
				}
				snap.Cells = cells
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return match.Snapshot{}, fmt.Errorf("skip snapshot field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if snap.RoomID == "" {
		return match.Snapshot{}, errors.New("decode snapshot: missing room id")
	}
	return snap, nil
}

func decodePlayer(b []byte) (match.PlayerSlot, error) {
	var p match.PlayerSlot
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return match.PlayerSlot{}, fmt.Errorf("decode player tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == playerFieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return match.PlayerSlot{}, fmt.Errorf("decode player id: %w", protowire.ParseError(n))
			}
			p.ID, b = v, b[n:]
		case num == playerFieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return match.PlayerSlot{}, fmt.Errorf("decode player name: %w", protowire.ParseError(n))
			}
			p.DisplayName, b = v, b[n:]
		case num == playerFieldIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return match.PlayerSlot{}, fmt.Errorf("decode player index: %w", protowire.ParseError(n))
			}
			p.Index, b = board.PlayerIndex(v), b[n:]
		case num == playerFieldHasMoved && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return match.PlayerSlot{}, fmt.Errorf("decode player has_moved: %w", protowire.ParseError(n))
			}
			p.HasMoved, b = protowire.DecodeBool(v), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return match.PlayerSlot{}, fmt.Errorf("skip player field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

func decodeCells(b []byte) ([]board.Cell, error) {
	var cells []board.Cell
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("decode cell %d: %w", len(cells), protowire.ParseError(n))
		}
		b = b[n:]
		cells = append(cells, board.Cell{
			Owner: board.PlayerIndex(v & (1<<ownerBits - 1)),
			Atoms: int(v >> ownerBits),
		})
	}
	return cells, nil
}
