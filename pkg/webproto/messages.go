// Package webproto is the application protocol spoken between clients and
// directory servers once fragments have been reassembled.
package webproto

// ServerKind is the content kind a directory server holds.
type ServerKind string

const (
    ServerText  ServerKind = "text"
    ServerMedia ServerKind = "media"
)

// Request is one of the request variants below.
type Request interface {
    Kind() string
    isRequest()
}

type ServerTypeQuery struct{}
type TextListQuery struct{}
type MediaListQuery struct{}

// ItemQuery asks a text server for one record; ID is parsed as a UUID.
type ItemQuery struct{ ID string }

// MediaQuery asks a media server for one record.
type MediaQuery struct{ ID string }

const (
    kindServerTypeQuery = "server_type_query"
    kindTextListQuery   = "text_list_query"
    kindMediaListQuery  = "media_list_query"
    kindItemQuery       = "item_query"
    kindMediaQuery      = "media_query"

    kindServerType       = "server_type"
    kindItemList         = "item_list"
    kindItem             = "item"
    kindErrNotFound      = "error_not_found"
    kindErrInvalidID     = "error_invalid_id"
    kindErrUnsupported   = "error_unsupported"
    kindErrMalformed     = "error_malformed_request"
    kindErrInternal      = "error_internal"
)

func (ServerTypeQuery) Kind() string { return kindServerTypeQuery }
func (TextListQuery) Kind() string   { return kindTextListQuery }
func (MediaListQuery) Kind() string  { return kindMediaListQuery }
func (ItemQuery) Kind() string       { return kindItemQuery }
func (MediaQuery) Kind() string      { return kindMediaQuery }

func (ServerTypeQuery) isRequest() {}
func (TextListQuery) isRequest()   {}
func (MediaListQuery) isRequest()  {}
func (ItemQuery) isRequest()       {}
func (MediaQuery) isRequest()      {}

// Response is one of the response variants below.
type Response interface {
    Kind() string
    isResponse()
}

type ServerType struct{ Server ServerKind }

// ItemList carries "id:title" summaries in ascending order.
type ItemList struct{ Summaries []string }

// Item carries one record encoded with the server's body format.
type Item struct{ Data []byte }

type ErrorNotFound struct{ ID string }
type ErrorInvalidID struct{ ID string }

// ErrorUnsupported answers a query for the other content kind.
type ErrorUnsupported struct{ Request string }

type ErrorMalformedRequest struct{}
type ErrorInternal struct{ Reason string }

func (ServerType) Kind() string            { return kindServerType }
func (ItemList) Kind() string              { return kindItemList }
func (Item) Kind() string                  { return kindItem }
func (ErrorNotFound) Kind() string         { return kindErrNotFound }
func (ErrorInvalidID) Kind() string        { return kindErrInvalidID }
func (ErrorUnsupported) Kind() string      { return kindErrUnsupported }
func (ErrorMalformedRequest) Kind() string { return kindErrMalformed }
func (ErrorInternal) Kind() string         { return kindErrInternal }

func (ServerType) isResponse()            {}
func (ItemList) isResponse()              {}
func (Item) isResponse()                  {}
func (ErrorNotFound) isResponse()         {}
func (ErrorInvalidID) isResponse()        {}
func (ErrorUnsupported) isResponse()      {}
func (ErrorMalformedRequest) isResponse() {}
func (ErrorInternal) isResponse()         {}
