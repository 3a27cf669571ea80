package content

import (
    "fmt"
    "sort"

    "github.com/google/uuid"
)

// Store maps content ids to records of one kind.
type Store[R Record] interface {
    Insert(r R) error
    Remove(id uuid.UUID) (R, bool, error)
    Get(id uuid.UUID) (R, bool, error)
    // List returns "id:title" summaries in ascending order.
    List() ([]string, error)
    Len() int
    Close() error
}

// Memory is a map-backed Store. It has no locking; the owning node mutates
// it from a single goroutine.
type Memory[R Record] struct {
    m map[uuid.UUID]R
}

func NewMemory[R Record]() *Memory[R] { return &Memory[R]{m: make(map[uuid.UUID]R)} }

func (s *Memory[R]) Insert(r R) error {
    if err := validate(r); err != nil { return err }
    id := r.RecordID()
    if _, ok := s.m[id]; ok { return fmt.Errorf("%w: %s", ErrDuplicate, id) }
    s.m[id] = r
    return nil
}

func (s *Memory[R]) Remove(id uuid.UUID) (R, bool, error) {
    r, ok := s.m[id]
    if ok { delete(s.m, id) }
    return r, ok, nil
}

func (s *Memory[R]) Get(id uuid.UUID) (R, bool, error) {
    r, ok := s.m[id]
    return r, ok, nil
}

func (s *Memory[R]) List() ([]string, error) {
    out := make([]string, 0, len(s.m))
    for _, r := range s.m { out = append(out, Summary(r)) }
    sort.Strings(out)
    return out, nil
}

func (s *Memory[R]) Len() int { return len(s.m) }

func (s *Memory[R]) Close() error { return nil }
