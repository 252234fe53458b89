package metakv

import "gkfs/internal/metadata"

// fullMerge applies operands, in insertion order, to base (nil if the key
// has no existing record) and returns the resulting serialized record.
// Mirrors MetadataMergeOperator::FullMergeV2: the first Create operand
// whose base is absent seeds the record; subsequent Create operands on an
// already-seeded record are ignored; Increase/DecreaseSize operands are
// skipped if no record exists yet to apply them to (spec.md §4.4).
func fullMerge(base []byte, operands []string) ([]byte, error) {
	var rec *metadata.Record
	if base != nil {
		var err error
		rec, err = metadata.Deserialize(string(base))
		if err != nil {
			return nil, err
		}
	}

	for _, raw := range operands {
		op, err := ParseOperand(raw)
		if err != nil {
			return nil, err
		}
		switch o := op.(type) {
		case CreateOperand:
			if rec == nil {
				rec, err = metadata.Deserialize(o.Metadata)
				if err != nil {
					return nil, err
				}
			}
		case IncreaseSizeOperand:
			if rec == nil {
				continue
			}
			if o.Append {
				rec.SetSize(rec.Size() + o.N)
			} else if o.N > rec.Size() {
				rec.SetSize(o.N)
			}
		case DecreaseSizeOperand:
			if rec == nil {
				continue
			}
			if o.N < rec.Size() {
				rec.SetSize(o.N)
			}
		}
	}

	if rec == nil {
		return nil, ErrNotFound
	}
	return []byte(rec.Serialize()), nil
}
