package metakv

import (
	"testing"

	"gkfs/internal/metadata"
)

func TestFullMergeCreateIfAbsent(t *testing.T) {
	rec := metadata.New(0o644)
	rec.SetSize(10)

	got, err := fullMerge(nil, []string{CreateOperand{Metadata: rec.Serialize()}.Serialize()})
	if err != nil {
		t.Fatalf("fullMerge: %v", err)
	}
	parsed, err := metadata.Deserialize(string(got))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if parsed.Size() != 10 {
		t.Errorf("expected size 10, got %d", parsed.Size())
	}
}

func TestFullMergeFirstCreateWins(t *testing.T) {
	first := metadata.New(0o644)
	first.SetSize(1)
	second := metadata.New(0o644)
	second.SetSize(999)

	got, err := fullMerge(nil, []string{
		CreateOperand{Metadata: first.Serialize()}.Serialize(),
		CreateOperand{Metadata: second.Serialize()}.Serialize(),
	})
	if err != nil {
		t.Fatalf("fullMerge: %v", err)
	}
	parsed, _ := metadata.Deserialize(string(got))
	if parsed.Size() != 1 {
		t.Errorf("expected first Create to win with size 1, got %d", parsed.Size())
	}
}

func TestFullMergeIncreaseSizeAppendIsCumulative(t *testing.T) {
	base := metadata.New(0o644)
	got, err := fullMerge([]byte(base.Serialize()), []string{
		IncreaseSizeOperand{N: 100, Append: true}.Serialize(),
		IncreaseSizeOperand{N: 50, Append: true}.Serialize(),
	})
	if err != nil {
		t.Fatalf("fullMerge: %v", err)
	}
	parsed, _ := metadata.Deserialize(string(got))
	if parsed.Size() != 150 {
		t.Errorf("expected cumulative size 150, got %d", parsed.Size())
	}
}

func TestFullMergeIncreaseSizeNonAppendTakesMax(t *testing.T) {
	base := metadata.New(0o644)
	base.SetSize(40)
	got, err := fullMerge([]byte(base.Serialize()), []string{
		IncreaseSizeOperand{N: 10, Append: false}.Serialize(),
		IncreaseSizeOperand{N: 80, Append: false}.Serialize(),
	})
	if err != nil {
		t.Fatalf("fullMerge: %v", err)
	}
	parsed, _ := metadata.Deserialize(string(got))
	if parsed.Size() != 80 {
		t.Errorf("expected max(40,10,80)=80, got %d", parsed.Size())
	}
}

func TestFullMergeDecreaseSizeTakesMin(t *testing.T) {
	base := metadata.New(0o644)
	base.SetSize(500)
	got, err := fullMerge([]byte(base.Serialize()), []string{
		DecreaseSizeOperand{N: 200}.Serialize(),
	})
	if err != nil {
		t.Fatalf("fullMerge: %v", err)
	}
	parsed, _ := metadata.Deserialize(string(got))
	if parsed.Size() != 200 {
		t.Errorf("expected size 200, got %d", parsed.Size())
	}
}

func TestFullMergeWithoutBaseAndNoCreateFails(t *testing.T) {
	_, err := fullMerge(nil, []string{IncreaseSizeOperand{N: 1, Append: true}.Serialize()})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestFullMergeAssociative checks that applying operands one at a time
// produces the same result as applying them all in one fullMerge call —
// the associativity spec.md §4.4 requires so operand batching never
// changes the outcome.
func TestFullMergeAssociative(t *testing.T) {
	base := metadata.New(0o644)
	ops := []string{
		IncreaseSizeOperand{N: 100, Append: true}.Serialize(),
		IncreaseSizeOperand{N: 50, Append: true}.Serialize(),
		DecreaseSizeOperand{N: 120}.Serialize(),
		IncreaseSizeOperand{N: 500, Append: false}.Serialize(),
	}

	batched, err := fullMerge([]byte(base.Serialize()), ops)
	if err != nil {
		t.Fatalf("batched fullMerge: %v", err)
	}

	stepwise := []byte(base.Serialize())
	for _, op := range ops {
		stepwise, err = fullMerge(stepwise, []string{op})
		if err != nil {
			t.Fatalf("stepwise fullMerge: %v", err)
		}
	}

	if string(batched) != string(stepwise) {
		t.Errorf("batched and stepwise merge diverge: %q != %q", batched, stepwise)
	}
}
