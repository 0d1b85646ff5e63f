package oracle

import (
	"github.com/sijms-go-ora-thin/oracle/internal/ttc"
)

// defaultFetchSize is the prefetch count sent on execute and the batch size
// of every subsequent fetch.
const defaultFetchSize = 25

// Cursor is an open statement streaming rows from the server. At most one
// cursor may be open per session; close it (or exhaust it and close) before
// opening the next.
type Cursor struct {
	sess      *Session
	stmt      *ttc.Statement
	meta      *rowMeta
	buf       []Row
	pos       int
	exhausted bool
	closed    bool
}

// ColumnNames returns the projected column names, available as soon as the
// cursor is open.
func (c *Cursor) ColumnNames() []string { return c.meta.names }

// Next returns the next row, or nil once the cursor is exhausted. The nil
// return is terminal: the server signalled end-of-fetch (ORA-01403, which
// never surfaces as an error) and further calls keep returning nil.
func (c *Cursor) Next() (*Row, error) {
	if c.closed {
		return nil, &Error{Kind: ErrProtocol, Where: "fetch", Message: "cursor is closed"}
	}
	for c.pos >= len(c.buf) {
		if c.exhausted || !c.stmt.HasMore {
			return nil, nil
		}
		rows, err := c.sess.fetchMore(c)
		if err != nil {
			return nil, err
		}
		c.buf = rows
		c.pos = 0
		if len(rows) == 0 && !c.stmt.HasMore {
			c.exhausted = true
			return nil, nil
		}
	}
	row := &c.buf[c.pos]
	c.pos++
	return row, nil
}

// IntoStream converts the cursor into a lazy row sequence. The stream is
// finite and not restartable: it consumes the cursor in place, and rows
// already taken through Next are not replayed.
func (c *Cursor) IntoStream() *RowStream { return &RowStream{cursor: c} }

// Close releases the server-side cursor. Safe to call more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.sess.closeCursor(c)
}

// ReadClob dereferences a CLOB locator and returns the full character data.
func (c *Cursor) ReadClob(loc *LobLocator) (string, error) {
	data, err := c.sess.readLob(loc, 1, loc.Size())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBlob dereferences a BLOB locator and returns the full binary data.
func (c *Cursor) ReadBlob(loc *LobLocator) ([]byte, error) {
	return c.sess.readLob(loc, 1, loc.Size())
}

// ReadLobPreview returns up to max units (characters for CLOB, bytes for
// BLOB) from the start of the LOB, without failing on oversized values.
func (c *Cursor) ReadLobPreview(loc *LobLocator, max uint64) ([]byte, error) {
	amount := loc.Size()
	if amount > max {
		amount = max
	}
	if amount == 0 {
		return nil, nil
	}
	return c.sess.readLob(loc, 1, amount)
}

// ReadClobLimited reads the whole CLOB but refuses values larger than
// limit, reporting the declared and permitted sizes.
func (c *Cursor) ReadClobLimited(loc *LobLocator, limit uint64) (string, error) {
	if loc.Exceeds(limit) {
		return "", &Error{Kind: ErrLobTooLarge, Actual: loc.Size(), Limit: limit}
	}
	return c.ReadClob(loc)
}

// RowStream is the lazy view over a cursor produced by IntoStream.
type RowStream struct {
	cursor *Cursor
}

// Next returns the next row, or nil when the underlying cursor is
// exhausted.
func (s *RowStream) Next() (*Row, error) { return s.cursor.Next() }

// ColumnNames returns the projected column names.
func (s *RowStream) ColumnNames() []string { return s.cursor.ColumnNames() }

// Close closes the underlying cursor.
func (s *RowStream) Close() error { return s.cursor.Close() }
