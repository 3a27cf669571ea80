// Package content holds the records served by a directory node and the
// stores that keep them.
package content

import (
    "errors"
    "fmt"

    "github.com/google/uuid"
)

// Kind names a content variant. It doubles as the storage key prefix.
type Kind string

const (
    KindText  Kind = "text"
    KindMedia Kind = "media"
)

var (
    ErrDuplicate     = errors.New("record already exists")
    ErrInvalidRecord = errors.New("invalid record")
)

// Record is an immutable content item.
type Record interface {
    RecordID() uuid.UUID
    RecordTitle() string
    RecordKind() Kind
}

// Summary renders the "id:title" listing form of a record.
func Summary(r Record) string { return r.RecordID().String() + ":" + r.RecordTitle() }

type TextFile struct {
    ID    uuid.UUID `json:"id" cbor:"1,keyasint"`
    Title string    `json:"title" cbor:"2,keyasint"`
    Body  string    `json:"body" cbor:"3,keyasint"`
}

func (t TextFile) RecordID() uuid.UUID  { return t.ID }
func (t TextFile) RecordTitle() string  { return t.Title }
func (TextFile) RecordKind() Kind       { return KindText }

type MediaFile struct {
    ID    uuid.UUID `json:"id" cbor:"1,keyasint"`
    Title string    `json:"title" cbor:"2,keyasint"`
    MIME  string    `json:"mime,omitempty" cbor:"3,keyasint,omitempty"`
    Data  []byte    `json:"data" cbor:"4,keyasint"`
}

func (m MediaFile) RecordID() uuid.UUID { return m.ID }
func (m MediaFile) RecordTitle() string { return m.Title }
func (MediaFile) RecordKind() Kind      { return KindMedia }

// NewText builds a text record with a fresh id.
func NewText(title, body string) TextFile {
    return TextFile{ID: uuid.New(), Title: title, Body: body}
}

// NewMedia builds a media record with a fresh id.
func NewMedia(title, mime string, data []byte) MediaFile {
    return MediaFile{ID: uuid.New(), Title: title, MIME: mime, Data: data}
}

func validate(r Record) error {
    if r.RecordID() == uuid.Nil { return fmt.Errorf("%w: nil id", ErrInvalidRecord) }
    return nil
}
