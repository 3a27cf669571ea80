// Package directory implements a content-directory node: it answers
// reassembled requests from its content store and obeys control commands.
package directory

import (
    "context"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "dirmesh/pkg/assembler"
    "dirmesh/pkg/content"
    "dirmesh/pkg/protocol"
    "dirmesh/pkg/router"
    "dirmesh/pkg/transport"
    "dirmesh/pkg/webproto"
)

type State int32

const (
    StateRunning State = iota
    StateTerminated
)

func (s State) String() string {
    switch s {
    case StateRunning:
        return "running"
    case StateTerminated:
        return "terminated"
    default:
        return fmt.Sprintf("state(%d)", int32(s))
    }
}

// Stats is a snapshot of server counters.
type Stats struct {
    Requests     uint64
    Responses    uint64
    Malformed    uint64
    Unsupported  uint64
    Internal     uint64
    SendFailures uint64
    Commands     uint64
}

type Options struct {
    // SweepInterval drives assembler idle eviction; 0 leaves it to Feed.
    SweepInterval time.Duration
}

// Server serves one content kind. Everything except State and Stats must
// be used from the goroutine running Run.
type Server[R content.Record] struct {
    kind     webproto.ServerKind
    store    content.Store[R]
    rt       *router.Router
    codec    *webproto.Codec
    inbound  <-chan protocol.Envelope
    commands <-chan Command
    opts     Options
    log      *zap.Logger

    state       atomic.Int32
    done        chan struct{}
    doneOnce    sync.Once
    requests    atomic.Uint64
    responses   atomic.Uint64
    malformed   atomic.Uint64
    unsupported atomic.Uint64
    internal    atomic.Uint64
    sendFails   atomic.Uint64
    cmds        atomic.Uint64
}

// KindOf returns the server kind for records of type R.
func KindOf[R content.Record]() webproto.ServerKind {
    var zero R
    if zero.RecordKind() == content.KindMedia { return webproto.ServerMedia }
    return webproto.ServerText
}

func New[R content.Record](rt *router.Router, store content.Store[R], codec *webproto.Codec,
    inbound <-chan protocol.Envelope, commands <-chan Command, opts Options) *Server[R] {
    kind := KindOf[R]()
    return &Server[R]{
        kind:     kind,
        store:    store,
        rt:       rt,
        codec:    codec,
        inbound:  inbound,
        commands: commands,
        opts:     opts,
        done:     make(chan struct{}),
        log:      zap.L().With(zap.Stringer("node", rt.Local()), zap.String("kind", string(kind))),
    }
}

func (s *Server[R]) Kind() webproto.ServerKind { return s.kind }

func (s *Server[R]) State() State { return State(s.state.Load()) }

// Done is closed once the server has terminated.
func (s *Server[R]) Done() <-chan struct{} { return s.done }

func (s *Server[R]) Stats() Stats {
    return Stats{
        Requests:     s.requests.Load(),
        Responses:    s.responses.Load(),
        Malformed:    s.malformed.Load(),
        Unsupported:  s.unsupported.Load(),
        Internal:     s.internal.Load(),
        SendFailures: s.sendFails.Load(),
        Commands:     s.cmds.Load(),
    }
}

// Run processes commands and inbound fragments until Shutdown, closure of
// the command channel or ctx cancellation. Pending commands are handled
// before each fragment. Fragments still queued at shutdown are not drained.
func (s *Server[R]) Run(ctx context.Context) error {
    if s.State() == StateTerminated { return ErrTerminated }
    defer s.terminate()
    s.log.Info("directory server running", zap.Int("items", s.store.Len()))

    var tick <-chan time.Time
    if s.opts.SweepInterval > 0 {
        t := time.NewTicker(s.opts.SweepInterval)
        defer t.Stop()
        tick = t.C
    }

    inbound := s.inbound
    for {
        select {
        case cmd, ok := <-s.commands:
            if !ok || s.handleCommand(cmd) { return nil }
            continue
        default:
        }

        select {
        case <-ctx.Done():
            return ctx.Err()
        case cmd, ok := <-s.commands:
            if !ok || s.handleCommand(cmd) { return nil }
        case env, ok := <-inbound:
            if !ok {
                inbound = nil
                continue
            }
            s.handleFragment(ctx, env)
        case now := <-tick:
            if n := s.rt.Assembler().Sweep(now); n > 0 {
                s.log.Debug("idle sessions evicted", zap.Int("count", n))
            }
        }
    }
}

func (s *Server[R]) terminate() {
    s.state.Store(int32(StateTerminated))
    s.doneOnce.Do(func() { close(s.done) })
    dropped := s.rt.Assembler().Reset()
    s.log.Info("directory server terminated", zap.Int("sessions_dropped", dropped))
}

func (s *Server[R]) handleFragment(ctx context.Context, env protocol.Envelope) {
    msg, ok := s.rt.HandleInbound(env)
    if !ok { return }
    if msg.Type != protocol.MsgRequest {
        s.log.Debug("ignoring non-request message", zap.Uint64("origin", msg.Origin), zap.Uint64("session", msg.SessionID), zap.Uint8("type", msg.Type))
        return
    }
    s.requests.Add(1)
    s.reply(ctx, msg, s.Handle(msg.Payload))
}

// Handle decodes one request payload and computes its response.
func (s *Server[R]) Handle(payload []byte) webproto.Response {
    req, err := s.codec.DecodeRequest(payload)
    if err != nil {
        s.malformed.Add(1)
        s.log.Warn("malformed request", zap.Int("bytes", len(payload)), zap.Error(err))
        return webproto.ErrorMalformedRequest{}
    }
    return s.dispatch(req)
}

func (s *Server[R]) dispatch(req webproto.Request) webproto.Response {
    switch r := req.(type) {
    case webproto.ServerTypeQuery:
        return webproto.ServerType{Server: s.kind}
    case webproto.TextListQuery:
        if s.kind != webproto.ServerText { return s.unsupportedReq(req) }
        return s.list()
    case webproto.MediaListQuery:
        if s.kind != webproto.ServerMedia { return s.unsupportedReq(req) }
        return s.list()
    case webproto.ItemQuery:
        if s.kind != webproto.ServerText { return s.unsupportedReq(req) }
        return s.item(r.ID)
    case webproto.MediaQuery:
        if s.kind != webproto.ServerMedia { return s.unsupportedReq(req) }
        return s.item(r.ID)
    default:
        return s.unsupportedReq(req)
    }
}

func (s *Server[R]) unsupportedReq(req webproto.Request) webproto.Response {
    s.unsupported.Add(1)
    return webproto.ErrorUnsupported{Request: req.Kind()}
}

func (s *Server[R]) internalErr(what string, err error) webproto.Response {
    s.internal.Add(1)
    s.log.Error(what, zap.Error(err))
    return webproto.ErrorInternal{Reason: fmt.Sprintf("%s: %v", what, err)}
}

func (s *Server[R]) list() webproto.Response {
    items, err := s.store.List()
    if err != nil { return s.internalErr("list store", err) }
    return webproto.ItemList{Summaries: items}
}

func (s *Server[R]) item(raw string) webproto.Response {
    id, err := uuid.Parse(raw)
    if err != nil { return webproto.ErrorInvalidID{ID: raw} }
    rec, ok, err := s.store.Get(id)
    if err != nil { return s.internalErr("read store", err) }
    if !ok { return webproto.ErrorNotFound{ID: raw} }
    b, err := s.codec.Marshal(rec)
    if err != nil { return s.internalErr("encode record", err) }
    return webproto.Item{Data: b}
}

func (s *Server[R]) reply(ctx context.Context, msg assembler.Message, resp webproto.Response) {
    b, err := s.codec.EncodeResponse(resp)
    if err != nil {
        s.internal.Add(1)
        s.log.Error("encode response", zap.String("response", resp.Kind()), zap.Error(err))
        b, err = s.codec.EncodeResponse(webproto.ErrorInternal{Reason: err.Error()})
        if err != nil {
            s.log.Error("encode internal error response", zap.Error(err))
            return
        }
    }
    dest := transport.PeerID(msg.Origin)
    if err := s.rt.Send(ctx, b, dest, msg.SessionID); err != nil {
        s.sendFails.Add(1)
        s.log.Warn("reply not delivered", zap.Stringer("dest", dest), zap.Uint64("session", msg.SessionID), zap.Error(err))
        return
    }
    s.responses.Add(1)
    s.log.Debug("replied", zap.Stringer("dest", dest), zap.Uint64("session", msg.SessionID), zap.String("response", resp.Kind()))
}

// handleCommand applies one control command and reports whether the server
// must stop.
func (s *Server[R]) handleCommand(cmd Command) bool {
    s.cmds.Add(1)
    delivered := true
    switch c := cmd.(type) {
    case Shutdown:
        s.log.Info("shutdown requested")
        return true
    case AddNeighbor:
        delivered = reply(c.Reply, s.rt.AddNeighbor(c.ID, c.Link))
    case RemoveNeighbor:
        delivered = reply(c.Reply, s.rt.RemoveNeighbor(c.ID))
    case ListCachedItems:
        delivered = reply(c.Reply, s.adminList())
    case GetItem:
        delivered = reply(c.Reply, s.adminGet(c.ID))
    case ListTextItems:
        delivered = reply(c.Reply, s.kindList(webproto.ServerText))
    case GetTextItem:
        delivered = reply(c.Reply, s.kindGet(webproto.ServerText, c.ID))
    case ListMediaItems:
        delivered = reply(c.Reply, s.kindList(webproto.ServerMedia))
    case GetMediaItem:
        delivered = reply(c.Reply, s.kindGet(webproto.ServerMedia, c.ID))
    case InsertItem:
        delivered = reply(c.Reply, s.adminInsert(c.Record))
    case RemoveItem:
        delivered = reply(c.Reply, s.adminRemove(c.ID))
    default:
        s.log.Warn("unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
    }
    if !delivered {
        s.log.Warn("command reply dropped", zap.String("type", fmt.Sprintf("%T", cmd)))
    }
    return false
}

func (s *Server[R]) adminList() ListReply {
    items, err := s.store.List()
    return ListReply{Items: items, Err: err}
}

func (s *Server[R]) kindList(k webproto.ServerKind) ListReply {
    if k != s.kind { return ListReply{Err: ErrRoleMismatch} }
    return s.adminList()
}

func (s *Server[R]) adminGet(raw string) ItemReply {
    id, err := uuid.Parse(raw)
    if err != nil { return ItemReply{Err: fmt.Errorf("%w: %q", ErrInvalidID, raw)} }
    rec, ok, err := s.store.Get(id)
    if err != nil || !ok { return ItemReply{Err: err} }
    return ItemReply{Record: rec}
}

func (s *Server[R]) kindGet(k webproto.ServerKind, raw string) ItemReply {
    if k != s.kind { return ItemReply{Err: ErrRoleMismatch} }
    return s.adminGet(raw)
}

func (s *Server[R]) adminInsert(rec content.Record) error {
    r, ok := rec.(R)
    if !ok { return fmt.Errorf("%w: %T", ErrRoleMismatch, rec) }
    if err := s.store.Insert(r); err != nil { return err }
    s.log.Info("item inserted", zap.Stringer("id", r.RecordID()), zap.String("title", r.RecordTitle()))
    return nil
}

func (s *Server[R]) adminRemove(raw string) ItemReply {
    id, err := uuid.Parse(raw)
    if err != nil { return ItemReply{Err: fmt.Errorf("%w: %q", ErrInvalidID, raw)} }
    rec, ok, err := s.store.Remove(id)
    if err != nil || !ok { return ItemReply{Err: err} }
    s.log.Info("item removed", zap.Stringer("id", id))
    return ItemReply{Record: rec}
}
