package metakv

import (
	"fmt"
	"strconv"
	"strings"
)

// Operand is a pending merge operand against a key's base value, per
// spec.md §4.4. Each operand serializes to a tagged string: one id
// character, a ':' separator, then parameters (original_source
// include/daemon/backend/metadata/merge.hpp OperandID/MergeOperand).
type Operand interface {
	Serialize() string
}

// CreateOperand carries the serialized metadata for a create-if-absent.
type CreateOperand struct {
	Metadata string
}

func (o CreateOperand) Serialize() string { return "C:" + o.Metadata }

// IncreaseSizeOperand enqueues a size increase: if Append, the new size is
// the old size plus N; otherwise the new size is max(old size, N).
type IncreaseSizeOperand struct {
	N      int64
	Append bool
}

func (o IncreaseSizeOperand) Serialize() string {
	flag := "f"
	if o.Append {
		flag = "t"
	}
	return fmt.Sprintf("I:%d,%s", o.N, flag)
}

// DecreaseSizeOperand enqueues a size decrease: the new size is min(old
// size, N).
type DecreaseSizeOperand struct {
	N int64
}

func (o DecreaseSizeOperand) Serialize() string {
	return fmt.Sprintf("D:%d", o.N)
}

// ParseOperand decodes the output of Operand.Serialize.
func ParseOperand(s string) (Operand, error) {
	tag, rest, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("metakv: malformed operand %q", s)
	}
	switch tag {
	case "C":
		return CreateOperand{Metadata: rest}, nil
	case "I":
		n, flag, ok := strings.Cut(rest, ",")
		if !ok {
			return nil, fmt.Errorf("metakv: malformed I operand %q", s)
		}
		v, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metakv: I operand: %w", err)
		}
		return IncreaseSizeOperand{N: v, Append: flag == "t"}, nil
	case "D":
		v, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metakv: D operand: %w", err)
		}
		return DecreaseSizeOperand{N: v}, nil
	default:
		return nil, fmt.Errorf("metakv: unknown operand tag %q", tag)
	}
}

// combine attempts a partial merge of prev followed by next into a single
// equivalent operand, per spec.md §4.4's compaction rules: consecutive I
// operands coalesce when both are append or both are non-append; consecutive
// D operands coalesce by taking the min; never coalesce across a C. Returns
// ok=false when the pair cannot be combined (the caller keeps both).
func combine(prev, next Operand) (Operand, bool) {
	switch p := prev.(type) {
	case IncreaseSizeOperand:
		n, ok := next.(IncreaseSizeOperand)
		if !ok || n.Append != p.Append {
			return nil, false
		}
		if p.Append {
			return IncreaseSizeOperand{N: p.N + n.N, Append: true}, true
		}
		return IncreaseSizeOperand{N: max64(p.N, n.N), Append: false}, true
	case DecreaseSizeOperand:
		n, ok := next.(DecreaseSizeOperand)
		if !ok {
			return nil, false
		}
		return DecreaseSizeOperand{N: min64(p.N, n.N)}, true
	default:
		return nil, false
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
