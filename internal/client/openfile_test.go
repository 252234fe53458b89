package client

import "testing"

func TestOpenFileMapAddStartsAtFdBase(t *testing.T) {
	m := NewOpenFileMap()
	fd := m.Add(NewOpenFile("/a", FlagRDWR, Regular))
	if fd != fdBase {
		t.Errorf("expected first fd to be %d, got %d", fdBase, fd)
	}
	fd2 := m.Add(NewOpenFile("/b", FlagRDWR, Regular))
	if fd2 != fdBase+1 {
		t.Errorf("expected second fd to be %d, got %d", fdBase+1, fd2)
	}
}

func TestOpenFileMapGetRemove(t *testing.T) {
	m := NewOpenFileMap()
	fd := m.Add(NewOpenFile("/a", 0, Regular))

	if !m.Exists(fd) {
		t.Fatal("expected fd to exist")
	}
	if !m.Remove(fd) {
		t.Fatal("expected Remove to succeed")
	}
	if m.Exists(fd) {
		t.Fatal("expected fd to no longer exist")
	}
	if m.Remove(fd) {
		t.Fatal("expected second Remove to fail")
	}
}

func TestOpenFilePositionIsSharedAcrossDup(t *testing.T) {
	m := NewOpenFileMap()
	f := NewOpenFile("/a", 0, Regular)
	fd := m.Add(f)

	dupFd, err := m.Dup(fd)
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}
	if dupFd == fd {
		t.Fatal("expected a distinct descriptor index")
	}

	f.SetPos(42)
	dupped, ok := m.Get(dupFd)
	if !ok {
		t.Fatal("expected dup'd fd to be registered")
	}
	if dupped.Pos() != 42 {
		t.Errorf("expected shared position 42, got %d", dupped.Pos())
	}

	// Closing the original shouldn't affect the dup'd descriptor's state.
	m.Remove(fd)
	if !m.Exists(dupFd) {
		t.Fatal("expected dup'd fd to survive closing the original")
	}
}

func TestDup2ReplacesTarget(t *testing.T) {
	m := NewOpenFileMap()
	fdA := m.Add(NewOpenFile("/a", 0, Regular))
	fdB := m.Add(NewOpenFile("/b", 0, Regular))

	if err := m.Dup2(fdA, fdB); err != nil {
		t.Fatalf("Dup2: %v", err)
	}

	got, ok := m.Get(fdB)
	if !ok {
		t.Fatal("expected fdB to remain registered")
	}
	if got.Path() != "/a" {
		t.Errorf("expected fdB to now point at /a, got %s", got.Path())
	}
}

func TestDup2SameFdIsNoop(t *testing.T) {
	m := NewOpenFileMap()
	fd := m.Add(NewOpenFile("/a", 0, Regular))
	if err := m.Dup2(fd, fd); err != nil {
		t.Fatalf("Dup2(fd, fd): %v", err)
	}
}

func TestDupUnknownFdFails(t *testing.T) {
	m := NewOpenFileMap()
	if _, err := m.Dup(999); err == nil {
		t.Fatal("expected Dup of an unopened fd to fail")
	}
}
