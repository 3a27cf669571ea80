package content

import (
    "errors"
    "os"
    "path/filepath"
    "testing"

    "github.com/google/uuid"
    "github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store[TextFile] {
    t.Helper()
    b, err := OpenBadger[TextFile](KindText, BadgerOptions{InMemory: true})
    require.NoError(t, err)
    t.Cleanup(func() { _ = b.Close() })
    return map[string]Store[TextFile]{
        "memory": NewMemory[TextFile](),
        "badger": b,
    }
}

func TestStoreContract(t *testing.T) {
    for name, st := range openStores(t) {
        t.Run(name, func(t *testing.T) {
            a := TextFile{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Title: "beta", Body: "b"}
            b := TextFile{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Title: "alpha", Body: "a"}
            require.NoError(t, st.Insert(a))
            require.NoError(t, st.Insert(b))
            require.ErrorIs(t, st.Insert(a), ErrDuplicate)
            require.ErrorIs(t, st.Insert(TextFile{Title: "no id"}), ErrInvalidRecord)
            require.Equal(t, 2, st.Len())

            got, ok, err := st.Get(a.ID)
            require.NoError(t, err)
            require.True(t, ok)
            require.Equal(t, a, got)

            list, err := st.List()
            require.NoError(t, err)
            require.Equal(t, []string{
                "00000000-0000-0000-0000-00000000000a:alpha",
                "00000000-0000-0000-0000-00000000000b:beta",
            }, list)

            removed, ok, err := st.Remove(a.ID)
            require.NoError(t, err)
            require.True(t, ok)
            require.Equal(t, a, removed)

            _, ok, err = st.Remove(a.ID)
            require.NoError(t, err)
            require.False(t, ok)
            _, ok, err = st.Get(a.ID)
            require.NoError(t, err)
            require.False(t, ok)
            require.Equal(t, 1, st.Len())
        })
    }
}

func TestBadgerKindsDoNotMix(t *testing.T) {
    texts, err := OpenBadger[TextFile](KindText, BadgerOptions{InMemory: true})
    require.NoError(t, err)
    defer texts.Close()
    media, err := NewBadger[MediaFile](texts.db, KindMedia)
    require.NoError(t, err)
    defer media.Close()

    require.NoError(t, texts.Insert(NewText("t", "body")))
    m := NewMedia("m", "image/png", []byte{0x89, 'P', 'N', 'G'})
    require.NoError(t, media.Insert(m))
    require.Equal(t, 1, texts.Len())
    require.Equal(t, 1, media.Len())

    got, ok, err := media.Get(m.ID)
    require.NoError(t, err)
    require.True(t, ok)
    require.Equal(t, m, got)
}

func TestBadgerPersists(t *testing.T) {
    dir := t.TempDir()
    rec := NewText("kept", "across restarts")

    st, err := OpenBadger[TextFile](KindText, BadgerOptions{Path: dir})
    require.NoError(t, err)
    require.NoError(t, st.Insert(rec))
    require.NoError(t, st.Close())

    st, err = OpenBadger[TextFile](KindText, BadgerOptions{Path: dir})
    require.NoError(t, err)
    defer st.Close()
    got, ok, err := st.Get(rec.ID)
    require.NoError(t, err)
    require.True(t, ok)
    require.Equal(t, rec, got)
}

func TestLoadSeed(t *testing.T) {
    dir := t.TempDir()
    require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.bin"), []byte{1, 2, 3}, 0o644))
    seed := `
text:
  - id: 11111111-2222-3333-4444-555555555555
    title: readme
    body: hello
  - title: generated
    body: id left empty
media:
  - title: logo
    mime: application/octet-stream
    path: logo.bin
  - title: inline
    data: abc
`
    path := filepath.Join(dir, "seed.yaml")
    require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

    s, err := LoadSeed(path)
    require.NoError(t, err)
    require.Len(t, s.Text, 2)
    require.Equal(t, "11111111-2222-3333-4444-555555555555", s.Text[0].ID.String())
    require.NotEqual(t, uuid.Nil, s.Text[1].ID)
    require.Len(t, s.Media, 2)
    require.Equal(t, []byte{1, 2, 3}, s.Media[0].Data)
    require.Equal(t, []byte("abc"), s.Media[1].Data)

    st := NewMemory[MediaFile]()
    n, err := Fill[MediaFile](st, s.Media)
    require.NoError(t, err)
    require.Equal(t, 2, n)
}

func TestLoadSeedBadID(t *testing.T) {
    path := filepath.Join(t.TempDir(), "seed.yaml")
    require.NoError(t, os.WriteFile(path, []byte("text:\n  - id: nope\n    title: x\n"), 0o644))
    _, err := LoadSeed(path)
    require.Error(t, err)
    require.False(t, errors.Is(err, os.ErrNotExist))
}
