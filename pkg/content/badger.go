package content

import (
    "errors"
    "fmt"
    "sort"

    "github.com/dgraph-io/badger/v4"
    "github.com/fxamacker/cbor/v2"
    "github.com/google/uuid"
    "go.uber.org/zap"

    "dirmesh/pkg/protocol/codec"
)

// Badger is a persistent Store. Records are CBOR-encoded under
// "<kind>:<id bytes>" keys.
type Badger[R Record] struct {
    db     *badger.DB
    prefix []byte
    enc    cbor.EncMode
    dec    cbor.DecMode
    owned  bool
}

// BadgerOptions selects where the database lives. An empty Path or InMemory
// keeps everything in memory.
type BadgerOptions struct {
    Path     string
    InMemory bool
}

// OpenBadger opens a database owned by the returned store.
func OpenBadger[R Record](kind Kind, o BadgerOptions) (*Badger[R], error) {
    opts := badger.DefaultOptions(o.Path)
    if o.InMemory || o.Path == "" {
        opts = badger.DefaultOptions("").WithInMemory(true)
    }
    opts.Logger = badgerLogger{zap.S().Named("badger")}
    opts.SyncWrites = false
    db, err := badger.Open(opts)
    if err != nil { return nil, fmt.Errorf("open badger store: %w", err) }
    s, err := NewBadger[R](db, kind)
    if err != nil {
        _ = db.Close()
        return nil, err
    }
    s.owned = true
    return s, nil
}

// NewBadger wraps an open database. Close does not close db.
func NewBadger[R Record](db *badger.DB, kind Kind) (*Badger[R], error) {
    enc, dec, err := codec.CBORModes()
    if err != nil { return nil, err }
    return &Badger[R]{db: db, prefix: []byte(string(kind) + ":"), enc: enc, dec: dec}, nil
}

func (s *Badger[R]) key(id uuid.UUID) []byte {
    k := make([]byte, 0, len(s.prefix)+len(id))
    k = append(k, s.prefix...)
    return append(k, id[:]...)
}

func (s *Badger[R]) Insert(r R) error {
    if err := validate(r); err != nil { return err }
    b, err := s.enc.Marshal(r)
    if err != nil { return fmt.Errorf("encode record %s: %w", r.RecordID(), err) }
    k := s.key(r.RecordID())
    return s.db.Update(func(txn *badger.Txn) error {
        if _, err := txn.Get(k); err == nil {
            return fmt.Errorf("%w: %s", ErrDuplicate, r.RecordID())
        } else if !errors.Is(err, badger.ErrKeyNotFound) {
            return err
        }
        return txn.Set(k, b)
    })
}

func (s *Badger[R]) Get(id uuid.UUID) (R, bool, error) {
    var out R
    found := false
    err := s.db.View(func(txn *badger.Txn) error {
        item, err := txn.Get(s.key(id))
        if errors.Is(err, badger.ErrKeyNotFound) { return nil }
        if err != nil { return err }
        found = true
        return item.Value(func(v []byte) error { return s.dec.Unmarshal(v, &out) })
    })
    if err != nil {
        var zero R
        return zero, false, fmt.Errorf("get record %s: %w", id, err)
    }
    return out, found, nil
}

func (s *Badger[R]) Remove(id uuid.UUID) (R, bool, error) {
    var out R
    found := false
    err := s.db.Update(func(txn *badger.Txn) error {
        k := s.key(id)
        item, err := txn.Get(k)
        if errors.Is(err, badger.ErrKeyNotFound) { return nil }
        if err != nil { return err }
        if err := item.Value(func(v []byte) error { return s.dec.Unmarshal(v, &out) }); err != nil { return err }
        found = true
        return txn.Delete(k)
    })
    if err != nil {
        var zero R
        return zero, false, fmt.Errorf("remove record %s: %w", id, err)
    }
    return out, found, nil
}

func (s *Badger[R]) List() ([]string, error) {
    var out []string
    err := s.db.View(func(txn *badger.Txn) error {
        it := txn.NewIterator(badger.IteratorOptions{Prefix: s.prefix, PrefetchValues: true, PrefetchSize: 64})
        defer it.Close()
        for it.Rewind(); it.Valid(); it.Next() {
            var r R
            if err := it.Item().Value(func(v []byte) error { return s.dec.Unmarshal(v, &r) }); err != nil {
                return fmt.Errorf("decode %x: %w", it.Item().Key(), err)
            }
            out = append(out, Summary(r))
        }
        return nil
    })
    if err != nil { return nil, err }
    sort.Strings(out)
    return out, nil
}

func (s *Badger[R]) Len() int {
    n := 0
    _ = s.db.View(func(txn *badger.Txn) error {
        it := txn.NewIterator(badger.IteratorOptions{Prefix: s.prefix})
        defer it.Close()
        for it.Rewind(); it.Valid(); it.Next() { n++ }
        return nil
    })
    return n
}

func (s *Badger[R]) Close() error {
    if !s.owned { return nil }
    return s.db.Close()
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct{ s *zap.SugaredLogger }

func (l badgerLogger) Errorf(f string, a ...interface{})   { l.s.Errorf(f, a...) }
func (l badgerLogger) Warningf(f string, a ...interface{}) { l.s.Warnf(f, a...) }
func (l badgerLogger) Infof(f string, a ...interface{})    { l.s.Debugf(f, a...) }
func (l badgerLogger) Debugf(f string, a ...interface{})   { l.s.Debugf(f, a...) }
