package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

const maxConnectData = 230

// Target is a resolved TCP endpoint plus the Oracle connect-data fields
// needed to build the CONNECT descriptor; both accepted connect-string
// forms parse into this before dialing.
type Target struct {
	Protocol     string
	Host         string
	Port         int
	ServiceName  string
	SID          string
	InstanceName string
}

// Descriptor renders the canonical (DESCRIPTION=...) connect string, the
// wire form CONNECT always carries regardless of which syntax the caller
// used.
func (t Target) Descriptor(programPath, hostName, userName string) string {
	address := fmt.Sprintf("(ADDRESS=(PROTOCOL=%s)(HOST=%s)(PORT=%d))", t.Protocol, t.Host, t.Port)
	data := "(CONNECT_DATA="
	if t.SID != "" {
		data += "(SID=" + t.SID + ")"
	} else {
		data += "(SERVICE_NAME=" + t.ServiceName + ")"
	}
	if t.InstanceName != "" {
		data += "(INSTANCE_NAME=" + t.InstanceName + ")"
	}
	data += fmt.Sprintf("(CID=(PROGRAM=%s)(HOST=%s)(USER=%s)))", programPath, hostName, userName)
	return "(DESCRIPTION=" + address + data + ")"
}

// Dial opens the TCP connection and runs the CONNECT/ACCEPT/REDIRECT
// handshake. It returns the framed wire.Session ready for protocol
// negotiation, plus the decoded ACCEPT body.
func Dial(target Target, descriptor string) (*wire.Session, *wire.AcceptInfo, error) {
	for redirects := 0; ; redirects++ {
		if redirects > 3 {
			return nil, nil, fmt.Errorf("protocol: too many redirects")
		}
		addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
		nc, err := net.Dial(target.Protocol, addr)
		if err != nil {
			return nil, nil, err
		}
		conn := wire.NewConn(nc)
		if err := writeConnect(conn, descriptor); err != nil {
			nc.Close()
			return nil, nil, err
		}
		pkt, err := conn.ReadPacket()
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		switch pkt.Type {
		case wire.PacketTypeAccept:
			info, err := wire.DecodeAccept(pkt)
			if err != nil {
				nc.Close()
				return nil, nil, err
			}
			if info.SessionDataUnit > 0 && info.SessionDataUnit <= 0xFFFF {
				conn.SetSDU(uint16(info.SessionDataUnit))
			}
			return wire.NewSession(conn), info, nil
		case wire.PacketTypeRedirect:
			info, err := wire.DecodeRedirect(pkt)
			if err != nil {
				nc.Close()
				return nil, nil, err
			}
			nc.Close()
			newTarget, err := parseRedirectAddress(info.Address, target)
			if err != nil {
				return nil, nil, err
			}
			target = newTarget
			continue
		default:
			nc.Close()
			return nil, nil, fmt.Errorf("protocol: unexpected packet type %d during connect", pkt.Type)
		}
	}
}

// Negotiate runs the CONNECT/ACCEPT/REDIRECT handshake and records the
// ACCEPT's protocol version and flags into a fresh Capabilities. The
// classic protocol-version and data-type exchanges are NOT run here: when
// the server advertises FastAuth support they are carried inside the
// coalesced auth message instead, so the caller decides —
// FastAuth path goes straight to internal/auth, the classic path calls
// ExchangeCapabilities first.
func Negotiate(target Target, descriptor string) (*wire.Session, *Capabilities, error) {
	session, accept, err := Dial(target, descriptor)
	if err != nil {
		return nil, nil, err
	}
	caps := NewCapabilities()
	caps.AdjustForProtocol(accept.Version, accept.Flags2)
	return session, caps, nil
}

// ExchangeCapabilities runs the classic two-message capability sequence:
// protocol version negotiation followed by the data-type exchange.
func ExchangeCapabilities(session *wire.Session, caps *Capabilities) error {
	if err := NegotiateProtocol(session, caps); err != nil {
		return err
	}
	return DataTypeNego(session, caps)
}

func writeConnect(conn *wire.Conn, descriptor string) error {
	data := []byte(descriptor)
	inline := data
	length := len(data)
	if length > maxConnectData {
		length = 0
		inline = nil
	}
	length += 58

	header := make([]byte, 58)
	binary.BigEndian.PutUint16(header[0:], uint16(length))
	header[4] = byte(wire.PacketTypeConnect)
	header[5] = 0
	binary.BigEndian.PutUint16(header[8:], VersionDesired)
	binary.BigEndian.PutUint16(header[10:], VersionMinimum)
	binary.BigEndian.PutUint16(header[12:], 1|1024|2048) // TNS_GSO_DONT_CARE | historical option bits
	binary.BigEndian.PutUint16(header[14:], 8192)        // session data unit
	binary.BigEndian.PutUint16(header[16:], 8192)        // transport data unit
	header[18] = 79
	header[19] = 152
	binary.BigEndian.PutUint16(header[22:], 1) // "histone" sequence marker
	binary.BigEndian.PutUint16(header[24:], uint16(len(inline)))
	binary.BigEndian.PutUint16(header[26:], 58) // dataOffset
	header[32] = 4
	header[33] = 4

	if err := conn.WriteConnect(header, inline); err != nil {
		return err
	}
	if len(inline) == 0 && len(data) > 0 {
		return conn.WriteData(data, 0)
	}
	return nil
}

func parseRedirectAddress(addr string, fallback Target) (Target, error) {
	// addr is itself a (DESCRIPTION=...) or (ADDRESS=...) fragment; reuse
	// the general descriptor parser and fall back to the original target's
	// fields for anything the redirect didn't specify.
	t, err := ParseDescriptor(addr)
	if err != nil {
		return Target{}, fmt.Errorf("protocol: bad redirect address %q: %w", addr, err)
	}
	if t.Host == "" {
		t.Host = fallback.Host
	}
	if t.Port == 0 {
		t.Port = fallback.Port
	}
	if t.Protocol == "" {
		t.Protocol = fallback.Protocol
	}
	if t.ServiceName == "" && t.SID == "" {
		t.ServiceName = fallback.ServiceName
		t.SID = fallback.SID
	}
	return t, nil
}

// ParseDescriptor accepts either `host:port/service` or the full
// `(DESCRIPTION=(ADDRESS=...)(CONNECT_DATA=...))` syntax.
func ParseDescriptor(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		return parseParenDescriptor(s)
	}
	return parseShortDescriptor(s)
}

func parseShortDescriptor(s string) (Target, error) {
	t := Target{Protocol: "tcp", Port: 1521}
	hostPort := s
	if idx := strings.Index(s, "/"); idx >= 0 {
		hostPort = s[:idx]
		t.ServiceName = s[idx+1:]
	}
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		// no port supplied
		t.Host = hostPort
		return t, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Target{}, fmt.Errorf("protocol: bad port %q", portStr)
	}
	t.Host = host
	t.Port = port
	return t, nil
}

// parseParenDescriptor walks the Oracle TNS keyword-value syntax:
// (KEY=VALUE) nested arbitrarily. It extracts PROTOCOL/HOST/PORT from the
// first ADDRESS clause and SERVICE_NAME/SID/INSTANCE_NAME from CONNECT_DATA.
func parseParenDescriptor(s string) (Target, error) {
	kv, err := parseTNSKeywords(s)
	if err != nil {
		return Target{}, err
	}
	t := Target{Protocol: "tcp", Port: 1521}
	if v := findKeyword(kv, "PROTOCOL"); v != "" {
		t.Protocol = strings.ToLower(v)
	}
	if v := findKeyword(kv, "HOST"); v != "" {
		t.Host = v
	}
	if v := findKeyword(kv, "PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Target{}, fmt.Errorf("protocol: bad port %q", v)
		}
		t.Port = p
	}
	if v := findKeyword(kv, "SERVICE_NAME"); v != "" {
		t.ServiceName = v
	}
	if v := findKeyword(kv, "SID"); v != "" {
		t.SID = v
	}
	if v := findKeyword(kv, "INSTANCE_NAME"); v != "" {
		t.InstanceName = v
	}
	if t.Host == "" {
		return Target{}, fmt.Errorf("protocol: descriptor has no HOST")
	}
	return t, nil
}

// tnsNode is one (KEY=VALUE) or (KEY=(child)(child)...) node.
type tnsNode struct {
	key      string
	value    string
	children []tnsNode
}

func parseTNSKeywords(s string) ([]tnsNode, error) {
	nodes, rest, err := parseTNSNodes(s)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rest) != "" {
		return nil, fmt.Errorf("protocol: trailing data in descriptor: %q", rest)
	}
	return nodes, nil
}

func parseTNSNodes(s string) ([]tnsNode, string, error) {
	var nodes []tnsNode
	for {
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "(") {
			return nodes, s, nil
		}
		node, rest, err := parseOneTNSNode(s)
		if err != nil {
			return nil, "", err
		}
		nodes = append(nodes, node)
		s = rest
	}
}

func parseOneTNSNode(s string) (tnsNode, string, error) {
	if !strings.HasPrefix(s, "(") {
		return tnsNode{}, s, fmt.Errorf("protocol: expected '(' in descriptor")
	}
	s = s[1:]
	eq := strings.IndexAny(s, "=")
	if eq < 0 {
		return tnsNode{}, s, fmt.Errorf("protocol: missing '=' in descriptor node")
	}
	key := strings.ToUpper(strings.TrimSpace(s[:eq]))
	s = s[eq+1:]
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		children, rest, err := parseTNSNodes(s)
		if err != nil {
			return tnsNode{}, rest, err
		}
		rest = strings.TrimSpace(rest)
		if !strings.HasPrefix(rest, ")") {
			return tnsNode{}, rest, fmt.Errorf("protocol: unterminated descriptor node %q", key)
		}
		return tnsNode{key: key, children: children}, rest[1:], nil
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return tnsNode{}, s, fmt.Errorf("protocol: unterminated descriptor value for %q", key)
	}
	return tnsNode{key: key, value: strings.TrimSpace(s[:end])}, s[end+1:], nil
}

func findKeyword(nodes []tnsNode, key string) string {
	for _, n := range nodes {
		if n.key == key && n.value != "" {
			return n.value
		}
		if v := findKeyword(n.children, key); v != "" {
			return v
		}
	}
	return ""
}
