package ot

// Transform adjusts a so that it can be applied after b, where a and b share
// the same base state (spec.md §4.1 transform table). It is a pure function:
// neither operand is mutated.
func Transform(a, b Operation) Operation {
	if a.IsNoop() || b.IsNoop() {
		return a // P3: T(op, noop) = op, and transforming noop yields noop.
	}

	switch a.Kind {
	case KindInsert:
		switch b.Kind {
		case KindInsert:
			return transformInsertInsert(a, b)
		case KindDelete:
			return transformInsertDelete(a, b)
		}
	case KindDelete:
		switch b.Kind {
		case KindInsert:
			return transformDeleteInsert(a, b)
		case KindDelete:
			return transformDeleteDelete(a, b)
		}
	}
	return a
}

// insert vs insert: tie-break favors b (server-accepted op wins the position).
func transformInsertInsert(a, b Operation) Operation {
	if b.Position <= a.Position {
		a.Position += uint32(utf16Len(b.Text))
	}
	return a
}

// insert vs delete.
func transformInsertDelete(a, b Operation) Operation {
	bEnd := b.Position + b.Length
	switch {
	case bEnd <= a.Position:
		a.Position -= b.Length
	case b.Position < a.Position:
		a.Position = b.Position
	}
	return a
}

// delete vs insert: the inserted text is never absorbed into a's range.
func transformDeleteInsert(a, b Operation) Operation {
	if b.Position <= a.Position {
		a.Position += uint32(utf16Len(b.Text))
	}
	return a
}

// delete vs delete, including overlap collapse to noop.
func transformDeleteDelete(a, b Operation) Operation {
	aEnd := a.Position + a.Length
	bEnd := b.Position + b.Length

	switch {
	case b.Position >= aEnd:
		return a
	case bEnd <= a.Position:
		a.Position -= b.Length
		return a
	default:
		start := a.Position
		if b.Position > start {
			start = b.Position
		}
		end := aEnd
		if bEnd < end {
			end = bEnd
		}
		overlapLen := int64(end) - int64(start)
		if overlapLen < 0 {
			overlapLen = 0
		}
		newLength := int64(a.Length) - overlapLen
		newPosition := a.Position
		if b.Position < newPosition {
			newPosition = b.Position
		}
		if newLength <= 0 {
			return Noop()
		}
		a.Position = newPosition
		a.Length = uint32(newLength)
		return a
	}
}

// Apply materializes op on content, clamping out-of-range positions/lengths
// per spec.md §4.1. Noop returns content unchanged.
func Apply(content string, op Operation) string {
	if op.IsNoop() {
		return content
	}

	units := toUTF16(content)
	n := uint32(len(units))

	pos := op.Position
	if pos > n {
		pos = n
	}

	switch op.Kind {
	case KindInsert:
		insUnits := toUTF16(op.Text)
		out := make([]uint16, 0, len(units)+len(insUnits))
		out = append(out, units[:pos]...)
		out = append(out, insUnits...)
		out = append(out, units[pos:]...)
		return fromUTF16(out)
	case KindDelete:
		end := pos + op.Length
		if end > n {
			end = n
		}
		out := make([]uint16, 0, len(units)-int(end-pos))
		out = append(out, units[:pos]...)
		out = append(out, units[end:]...)
		return fromUTF16(out)
	default:
		return content
	}
}

// TransformIndex adjusts a cursor position (in UTF-16 code units) through a
// single applied operation. The room layer relays cursor payloads as opaque
// JSON and does not pass them through this function.
func TransformIndex(op Operation, position uint32) uint32 {
	switch op.Kind {
	case KindInsert:
		if op.Position <= position {
			return position + uint32(utf16Len(op.Text))
		}
		return position
	case KindDelete:
		end := op.Position + op.Length
		switch {
		case position >= end:
			return position - op.Length
		case position >= op.Position:
			return op.Position
		default:
			return position
		}
	default:
		return position
	}
}
