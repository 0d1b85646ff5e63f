package oracle

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sijms-go-ora-thin/oracle/internal/auth"
	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/tracelog"
	"github.com/sijms-go-ora-thin/oracle/internal/ttc"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// Session is one authenticated connection to an Oracle server. It owns its
// transport exclusively: exactly one request may be outstanding, and at
// most one cursor may be open at a time. A Session is not safe for
// concurrent use; run one per goroutine.
type Session struct {
	wire   *wire.Session
	caps   *protocol.Capabilities
	tracer tracelog.Tracer
	lob    *ttc.LobReader

	open     *Cursor
	poisoned bool
	closed   bool
}

// Connect parses the descriptor (either host:port/service or the full
// (DESCRIPTION=...) form), dials the server, negotiates protocol and
// capabilities, authenticates with O5LOGON (FastAuth when the server
// advertises it), and returns a ready Session.
func Connect(descriptor, username, password string) (*Session, error) {
	return ConnectWithLogger(descriptor, username, password, nil)
}

// ConnectWithLogger is Connect with packet- and session-level debug logging
// routed to the given logrus logger.
func ConnectWithLogger(descriptor, username, password string, logger *logrus.Logger) (*Session, error) {
	target, err := protocol.ParseDescriptor(descriptor)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidConnectString, Message: err.Error(), cause: err}
	}

	tracer := tracelog.Discard()
	if logger != nil {
		tracer = tracelog.New(logger, logrus.Fields{
			"host":    target.Host,
			"port":    target.Port,
			"service": target.ServiceName,
			"user":    username,
		})
	}

	hostname, herr := os.Hostname()
	if herr != nil {
		hostname = "unknown"
	}
	info := auth.DefaultClientInfo()
	desc := target.Descriptor(info.Program, hostname, username)

	tracer.Print("connecting to ", target.Host)
	ws, caps, err := protocol.Negotiate(target, desc)
	if err != nil {
		return nil, classifyConnectError(err)
	}

	if !caps.SupportsFastAuth {
		if err := protocol.ExchangeCapabilities(ws, caps); err != nil {
			ws.Conn().Close()
			return nil, classifyConnectError(err)
		}
	}

	creds := auth.Credentials{Username: username, Password: password}
	if err := auth.Logon(ws, caps, creds, info, tracer); err != nil {
		ws.Conn().Close()
		var oe *auth.OracleError
		if errors.As(err, &oe) {
			return nil, &Error{Kind: ErrAuthFailed, Code: oe.Code, Message: oe.Message, cause: err}
		}
		return nil, classifyConnectError(err)
	}
	tracer.Print("session established, protocol version ", caps.ProtocolVersion)

	return &Session{
		wire:   ws,
		caps:   caps,
		tracer: tracer,
		lob:    ttc.NewLobReader(ws, caps, tracer),
	}, nil
}

// Query executes a SELECT and materializes the full result. Intended for
// small results; use OpenCursor to stream large ones.
func (s *Session) Query(sql string) (*RowSet, error) {
	cursor, err := s.OpenCursor(sql)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	rs := &RowSet{meta: cursor.meta}
	for {
		row, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return rs, nil
		}
		rs.rows = append(rs.rows, *row)
	}
}

// OpenCursor parses, describes and executes sql, returning a cursor over
// its rows with the first prefetch batch already buffered.
func (s *Session) OpenCursor(sql string) (*Cursor, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if s.open != nil && !s.open.closed {
		return nil, &Error{Kind: ErrProtocol, Where: "execute", Message: "a cursor is already open on this session"}
	}
	stmt := ttc.NewStatement(s.wire, s.caps, s.tracer, sql, false)
	rows, err := stmt.Execute(defaultFetchSize)
	if err != nil {
		return nil, s.mapError("execute", err)
	}
	cursor := &Cursor{
		sess: s,
		stmt: stmt,
		meta: newRowMeta(stmt.Columns),
	}
	cursor.buf = cursor.adoptRows(rows)
	s.open = cursor
	return cursor, nil
}

// Close logs the session off and closes the socket. A poisoned session
// skips the logoff exchange and just tears the connection down.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.poisoned {
		if err := ttc.Logoff(s.wire, s.caps); err != nil {
			s.tracer.Print("logoff failed: ", err)
		}
	}
	return s.wire.Conn().Close()
}

// Cancel aborts the in-flight request: MARKER BREAK, then RESET, then
// discard buffered data until the server confirms. On success the session
// is idle again; on failure it is poisoned and must be closed.
func (s *Session) Cancel() error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.wire.SendMarker(wire.MarkerTypeBreak, 1); err != nil {
		s.poisoned = true
		return ioError(err)
	}
	// The server answers with its own marker exchange followed by the
	// interrupt completion record; Recv folds the BREAK/RESET recovery and
	// hands back that record, which we discard.
	if _, err := s.wire.Recv(); err != nil {
		s.poisoned = true
		return s.mapError("cancel", err)
	}
	if s.open != nil {
		s.open.exhausted = true
	}
	return nil
}

func (s *Session) usable() error {
	if s.closed {
		return &Error{Kind: ErrProtocol, Where: "session", Message: "session is closed"}
	}
	if s.poisoned {
		return &Error{Kind: ErrProtocol, Where: "session", Message: "session is poisoned; close it"}
	}
	return nil
}

func (s *Session) fetchMore(c *Cursor) ([]Row, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	rows, err := c.stmt.Fetch(defaultFetchSize)
	if err != nil {
		return nil, s.mapError("fetch", err)
	}
	return c.adoptRows(rows), nil
}

func (s *Session) closeCursor(c *Cursor) error {
	if s.open == c {
		s.open = nil
	}
	if s.closed || s.poisoned {
		return nil
	}
	if err := ttc.CloseCursor(s.wire, s.caps, c.stmt.CursorID()); err != nil {
		return s.mapError("close cursor", err)
	}
	return nil
}

func (s *Session) readLob(loc *LobLocator, offset, amount uint64) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	data, err := s.lob.Read(loc.Raw[:], offset, amount)
	if err != nil {
		return nil, s.mapError("lob read", err)
	}
	return data, nil
}

// adoptRows wraps the ttc layer's rows with the cursor's shared metadata
// record. Every row points at the same rowMeta; none copies it.
func (c *Cursor) adoptRows(rows []ttc.Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{meta: c.meta, values: r.Values}
	}
	return out
}

// mapError folds an internal-layer failure into the public taxonomy and
// poisons the session for transport-level failures, per the rule that a
// partial read leaves the protocol state unrecoverable.
func (s *Session) mapError(where string, err error) error {
	var oe *ttc.OracleError
	if errors.As(err, &oe) {
		// A server-reported error arrives in a cleanly terminated response;
		// the session stays usable.
		return &Error{Kind: ErrOracle, Code: int(oe.Code), Message: oe.Message, cause: err}
	}
	s.poisoned = true
	var ute *ttc.UnsupportedTypeError
	if errors.As(err, &ute) {
		// Raised at describe time, before any row decode — but the response
		// was abandoned mid-parse, so the transport is done for.
		return &Error{Kind: ErrUnsupportedType, TypeNum: ute.TypeNum, Column: ute.Column, cause: err}
	}
	if isIOError(err) {
		return ioError(err)
	}
	return protocolError(where, err)
}

func classifyConnectError(err error) error {
	var refused *wire.ErrRefused
	if errors.As(err, &refused) {
		return &Error{Kind: ErrRefused, Message: refused.Message, cause: err}
	}
	var oe *auth.OracleError
	if errors.As(err, &oe) {
		return &Error{Kind: ErrAuthFailed, Code: oe.Code, Message: oe.Message, cause: err}
	}
	if isIOError(err) {
		return ioError(err)
	}
	return protocolError("connect", err)
}

func isIOError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
