package auth

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sijms-go-ora-thin/oracle/internal/protocol"
	"github.com/sijms-go-ora-thin/oracle/internal/tracelog"
	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

// Message-type dispatch bytes relevant to the auth exchange.
const (
	msgTypeProtocol      = 1
	msgTypeDataTypes     = 2
	msgTypeFunction      = 3
	msgTypeError         = 4
	msgTypeParameter     = 8
	msgTypeStatus        = 9
	msgTypeEndOfResponse = 29
	msgTypeFastAuth      = 34
)

// O5LOGON function codes.
const (
	funcAuthPhaseOne = 118
	funcAuthPhaseTwo = 115
)

// driverName is reported in SESSION_CLIENT_DRIVER_NAME and in the FastAuth
// protocol section.
const driverName = "oracle-thin-go"

// Verifier types the server advertises in AUTH_VFR_DATA's flags field.
const (
	verifierType11g1 = 0xb152
	verifierType11g2 = 0x1b25
	verifierType12c  = 0x4815
)

const (
	authModeLogon        = 0x00000001
	authModeWithPassword = 0x00000100
)

// Credentials is the username/password pair O5LOGON authenticates.
type Credentials struct {
	Username string
	Password string
}

// OracleError is a server-reported ORA- error surfaced during the logon
// exchange, parsed out of a TNS_MSG_TYPE_ERROR payload.
type OracleError struct {
	Code    int
	Message string
}

func (e *OracleError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("ORA-%05d", e.Code)
}

// sessionData accumulates the key-value parameters the server returns
// across both logon phases, plus the combo key derived during verifier
// generation (needed to validate AUTH_SVR_RESPONSE in phase 2).
type sessionData struct {
	params       map[string]string
	verifierType uint32
	comboKey     []byte
}

func newSessionData() *sessionData {
	return &sessionData{params: make(map[string]string)}
}

// ClientInfo carries the identity fields phase 1 reports to the server.
type ClientInfo struct {
	Terminal    string
	Program     string
	Machine     string
	PID         string
	OSUser      string
	DriverName  string
	ConnectData string
}

// DefaultClientInfo fills in the fields this process can determine for
// itself, sets Program and DriverName to "oracle-thin-go", and leaves
// ConnectData for the caller to set.
func DefaultClientInfo() ClientInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return ClientInfo{
		Terminal:   "unknown",
		Program:    "oracle-thin-go",
		Machine:    hostname,
		PID:        strconv.Itoa(os.Getpid()),
		OSUser:     currentOSUser(),
		DriverName: "oracle-thin-go",
	}
}

func currentOSUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	return "unknown"
}

// Logon runs the O5LOGON exchange appropriate for the negotiated
// capabilities: the coalesced FastAuth round trip when the server's ACCEPT
// advertised it (23ai and newer), otherwise the classic
// two-phase exchange. The classic path assumes the caller has already run
// protocol.ExchangeCapabilities; the FastAuth path carries those exchanges
// inside its own combined message.
func Logon(s *wire.Session, caps *protocol.Capabilities, creds Credentials, info ClientInfo, tracer tracelog.Tracer) error {
	if tracer == nil {
		tracer = tracelog.Discard()
	}
	if caps.SupportsFastAuth {
		return FastLogon(s, caps, creds, info, tracer)
	}
	session, err := phaseOne(s, creds, info)
	if err != nil {
		return err
	}
	return phaseTwo(s, creds, session)
}

func buildPhaseOneMessage(creds Credentials, info ClientInfo) []byte {
	hasUser := len(creds.Username) > 0
	w := wire.NewWriteBuffer()
	w.PutByte(msgTypeFunction)
	w.PutByte(funcAuthPhaseOne)
	w.PutByte(1) // sequence number
	if hasUser {
		w.PutByte(1)
	} else {
		w.PutByte(0)
	}
	w.PutUB(uint64(len(creds.Username)))
	w.PutUB(authModeLogon)
	w.PutByte(1) // pointer to key/value pairs
	w.PutUB(5)   // number of auth key/value pairs that follow
	w.PutByte(1) // authivl pointer
	w.PutByte(1) // authovln pointer
	if hasUser {
		w.PutCLR([]byte(creds.Username))
	}
	w.PutKeyValString("AUTH_TERMINAL", info.Terminal, 0)
	w.PutKeyValString("AUTH_PROGRAM_NM", info.Program, 0)
	w.PutKeyValString("AUTH_MACHINE", info.Machine, 0)
	w.PutKeyValString("AUTH_PID", info.PID, 0)
	w.PutKeyValString("AUTH_SID", info.OSUser, 0)
	return w.Bytes()
}

func phaseOne(s *wire.Session, creds Credentials, info ClientInfo) (*sessionData, error) {
	s.BeginRequest()
	if err := s.Send(buildPhaseOneMessage(creds, info), 0); err != nil {
		return nil, err
	}
	msg, err := s.Recv()
	if err != nil {
		return nil, err
	}
	if msg.FromMarkerReset {
		return nil, parseErrorFromBody(msg.Body)
	}
	return parseAuthResponse(msg.Body)
}

func phaseTwo(s *wire.Session, creds Credentials, session *sessionData) error {
	sessionKey, speedyKey, encodedPassword, err := generateVerifier(creds.Password, session)
	if err != nil {
		return err
	}

	hasUser := len(creds.Username) > 0
	numPairs := uint64(6)
	if speedyKey != "" {
		numPairs++
	}
	w := wire.NewWriteBuffer()
	w.PutByte(msgTypeFunction)
	w.PutByte(funcAuthPhaseTwo)
	w.PutByte(2) // sequence number
	if hasUser {
		w.PutByte(1)
	} else {
		w.PutByte(0)
	}
	w.PutUB(uint64(len(creds.Username)))
	w.PutUB(authModeLogon | authModeWithPassword)
	w.PutByte(1) // pointer to key/value pairs
	w.PutUB(numPairs)
	w.PutByte(1) // authivl pointer
	w.PutByte(1) // authovln pointer
	if hasUser {
		w.PutCLR([]byte(creds.Username))
	}
	w.PutKeyValString("AUTH_SESSKEY", sessionKey, 1)
	if speedyKey != "" {
		w.PutKeyValString("AUTH_PBKDF2_SPEEDY_KEY", speedyKey, 0)
	}
	w.PutKeyValString("AUTH_PASSWORD", encodedPassword, 0)
	w.PutKeyValString("SESSION_CLIENT_CHARSET", "873", 0)
	w.PutKeyValString("SESSION_CLIENT_DRIVER_NAME", driverName, 0)
	w.PutKeyValString("SESSION_CLIENT_VERSION", "185599488", 0)
	w.PutKeyValString("AUTH_ALTER_SESSION", TimezoneStatement()+"\x00", 1)

	s.BeginRequest()
	if err := s.Send(w.Bytes(), 0); err != nil {
		return err
	}
	msg, err := s.Recv()
	if err != nil {
		return err
	}
	if msg.FromMarkerReset {
		return parseErrorFromBody(msg.Body)
	}
	response, err := parseAuthResponse(msg.Body)
	if err != nil {
		return err
	}
	if svrResponse, ok := response.params["AUTH_SVR_RESPONSE"]; ok && session.comboKey != nil {
		encoded, err := hexDecode(svrResponse)
		if err != nil {
			return fmt.Errorf("auth: invalid AUTH_SVR_RESPONSE hex: %w", err)
		}
		decrypted, err := decryptCBC(session.comboKey, encoded)
		if err != nil {
			return err
		}
		if len(decrypted) < 32 || string(decrypted[16:32]) != "SERVER_TO_CLIENT" {
			return fmt.Errorf("auth: server response verification failed")
		}
	}
	return nil
}

// generateVerifier dispatches on the server-declared verifier type to
// produce (session_key, speedy_key, encoded_password); speedy_key is only
// populated for the 12c PBKDF2 path.
func generateVerifier(password string, session *sessionData) (sessionKey, speedyKey, encodedPassword string, err error) {
	verifierHex, ok := session.params["AUTH_VFR_DATA"]
	if !ok {
		return "", "", "", fmt.Errorf("auth: missing AUTH_VFR_DATA")
	}
	verifierData, err := hexDecode(verifierHex)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: invalid AUTH_VFR_DATA hex: %w", err)
	}
	switch session.verifierType {
	case verifierType12c:
		return generate12cVerifier([]byte(password), verifierData, session)
	case verifierType11g1, verifierType11g2:
		return generate11gVerifier([]byte(password), verifierData, session)
	default:
		return "", "", "", fmt.Errorf("auth: unsupported verifier type 0x%x", session.verifierType)
	}
}

func generate12cVerifier(password, verifierData []byte, session *sessionData) (sessionKey, speedyKey, encodedPassword string, err error) {
	iterationsStr, ok := session.params["AUTH_PBKDF2_VGEN_COUNT"]
	if !ok {
		return "", "", "", fmt.Errorf("auth: missing AUTH_PBKDF2_VGEN_COUNT")
	}
	iterations, err := strconv.Atoi(iterationsStr)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: invalid AUTH_PBKDF2_VGEN_COUNT: %w", err)
	}
	const keyLen = 32

	salt := append(append([]byte{}, verifierData...), []byte("AUTH_PBKDF2_SPEEDY_KEY")...)
	passwordKey := derivePBKDF2SHA512(password, salt, 64, iterations)

	passwordHash := sha512Sum(append(append([]byte{}, passwordKey...), verifierData...))[:keyLen]

	serverSessKeyHex, ok := session.params["AUTH_SESSKEY"]
	if !ok {
		return "", "", "", fmt.Errorf("auth: missing AUTH_SESSKEY")
	}
	serverSessKey, err := hexDecode(serverSessKeyHex)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: invalid AUTH_SESSKEY hex: %w", err)
	}
	sessionKeyPartA, err := decryptCBC(passwordHash, serverSessKey)
	if err != nil {
		return "", "", "", err
	}

	sessionKeyPartB, err := randomBytes(len(sessionKeyPartA))
	if err != nil {
		return "", "", "", err
	}
	encryptedClientKey, err := encryptCBC(passwordHash, sessionKeyPartB)
	if err != nil {
		return "", "", "", err
	}
	sessionKey = hexUpper(truncate(encryptedClientKey, 32))

	cskSaltHex, ok := session.params["AUTH_PBKDF2_CSK_SALT"]
	if !ok {
		return "", "", "", fmt.Errorf("auth: missing AUTH_PBKDF2_CSK_SALT")
	}
	cskSalt, err := hexDecode(cskSaltHex)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: invalid AUTH_PBKDF2_CSK_SALT hex: %w", err)
	}
	sderCountStr, ok := session.params["AUTH_PBKDF2_SDER_COUNT"]
	if !ok {
		return "", "", "", fmt.Errorf("auth: missing AUTH_PBKDF2_SDER_COUNT")
	}
	sderCount, err := strconv.Atoi(sderCountStr)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: invalid AUTH_PBKDF2_SDER_COUNT: %w", err)
	}

	tempKey := append(truncate(sessionKeyPartB, keyLen), truncate(sessionKeyPartA, keyLen)...)
	tempKeyHex := hexUpper(tempKey)
	comboKey := derivePBKDF2SHA512([]byte(tempKeyHex), cskSalt, keyLen, sderCount)
	session.comboKey = comboKey

	speedySalt, err := randomBytes(16)
	if err != nil {
		return "", "", "", err
	}
	speedyPlaintext := append(speedySalt, passwordKey...)
	speedyEncrypted, err := encryptCBC(comboKey, speedyPlaintext)
	if err != nil {
		return "", "", "", err
	}
	speedyKey = hexUpper(truncate(speedyEncrypted, 80))

	passwordSalt, err := randomBytes(16)
	if err != nil {
		return "", "", "", err
	}
	passwordWithSalt := append(passwordSalt, password...)
	encryptedPassword, err := encryptCBC(comboKey, passwordWithSalt)
	if err != nil {
		return "", "", "", err
	}
	encodedPassword = hexUpper(encryptedPassword)
	return sessionKey, speedyKey, encodedPassword, nil
}

func generate11gVerifier(password, verifierData []byte, session *sessionData) (sessionKey, speedyKey, encodedPassword string, err error) {
	passwordHash := append(sha1Sum(append(append([]byte{}, password...), verifierData...)), 0, 0, 0, 0)

	serverSessKeyHex, ok := session.params["AUTH_SESSKEY"]
	if !ok {
		return "", "", "", fmt.Errorf("auth: missing AUTH_SESSKEY")
	}
	serverSessKey, err := hexDecode(serverSessKeyHex)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: invalid AUTH_SESSKEY hex: %w", err)
	}
	sessionKeyPartA, err := decryptCBC(passwordHash, serverSessKey)
	if err != nil {
		return "", "", "", err
	}

	sessionKeyPartB, err := randomBytes(len(sessionKeyPartA))
	if err != nil {
		return "", "", "", err
	}
	encryptedClientKey, err := encryptCBC(passwordHash, sessionKeyPartB)
	if err != nil {
		return "", "", "", err
	}
	sessionKey = hexUpper(truncate(encryptedClientKey, 48))

	const comboKeyLen = 24
	xorResult := make([]byte, comboKeyLen)
	for i := 16; i < 40 && i < len(sessionKeyPartA) && i < len(sessionKeyPartB); i++ {
		xorResult[i-16] = sessionKeyPartA[i] ^ sessionKeyPartB[i]
	}
	part1 := md5Sum(xorResult[:16])
	part2 := md5Sum(xorResult[16:])
	comboKey := append(append([]byte{}, part1...), part2[:8]...)
	session.comboKey = comboKey

	passwordSalt, err := randomBytes(16)
	if err != nil {
		return "", "", "", err
	}
	passwordWithSalt := append(passwordSalt, password...)
	encryptedPassword, err := encryptCBC(comboKey, passwordWithSalt)
	if err != nil {
		return "", "", "", err
	}
	encodedPassword = hexUpper(encryptedPassword)
	return sessionKey, "", encodedPassword, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// parseAuthResponse reads a phase-1/phase-2 reply: a PARAMETER message's
// key/value/flags triples (AUTH_VFR_DATA's flags field is the verifier
// type rather than ordinary flags), a STATUS message optionally followed
// by more parameters, or an ERROR message surfaced as an *OracleError.
func parseAuthResponse(body []byte) (*sessionData, error) {
	r := wire.NewReadBuffer(body)
	session := newSessionData()
	msgType, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	switch msgType {
	case msgTypeParameter:
		if err := readParams(r, session); err != nil {
			return nil, err
		}
	case msgTypeError:
		return nil, parseError(r)
	case msgTypeStatus:
		if _, err := r.GetUB(); err != nil { // status code
			return nil, err
		}
		if r.Remaining() > 0 {
			if next, err := r.GetByte(); err == nil && next == msgTypeParameter {
				if err := readParams(r, session); err != nil {
					return nil, err
				}
			}
		}
	}
	return session, nil
}

func readParams(r *wire.ReadBuffer, session *sessionData) error {
	numParams, err := r.GetUB()
	if err != nil {
		return err
	}
	for i := uint64(0); i < numParams; i++ {
		if r.Remaining() < 3 {
			break
		}
		key, err := r.GetDlc()
		if err != nil {
			break
		}
		value, err := r.GetDlc()
		if err != nil {
			break
		}
		if string(key) == "AUTH_VFR_DATA" {
			vt, err := r.GetUB()
			if err != nil {
				break
			}
			session.verifierType = uint32(vt)
		} else {
			if _, err := r.GetUB(); err != nil { // flags, discarded
				break
			}
		}
		if len(key) > 0 {
			session.params[string(key)] = string(value)
		}
	}
	return nil
}

func parseError(r *wire.ReadBuffer) error {
	rest, err := r.GetBytes(r.Remaining())
	if err != nil {
		return err
	}
	return parseErrorFromBody(rest)
}

// parseErrorFromBody scans a raw TTC payload for an "ORA-" marker, since
// the logon-phase error record isn't the full ~30-field error-info
// structure the statement pipeline parses; it is whatever
// bytes followed the BREAK/RESET recovery or the ERROR message code.
func parseErrorFromBody(body []byte) error {
	idx := indexOf(body, []byte("ORA-"))
	if idx < 0 {
		return &OracleError{Message: "unknown Oracle error during logon"}
	}
	end := idx
	for end < len(body) && body[end] != 0 {
		end++
	}
	msg := string(body[idx:end])
	code := 0
	if len(msg) > 4 {
		codeStr := msg[4:]
		if colon := indexByte(codeStr, ':'); colon >= 0 {
			codeStr = codeStr[:colon]
		}
		if v, err := strconv.Atoi(codeStr); err == nil {
			code = v
		}
	}
	return &OracleError{Code: code, Message: msg}
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// TimezoneStatement builds the ALTER SESSION statement the client sends as
// AUTH_ALTER_SESSION in the phase-2 request, pinning the session timezone
// to the local offset.
func TimezoneStatement() string {
	_, offset := time.Now().Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	return fmt.Sprintf("ALTER SESSION SET TIME_ZONE='%s%02d:%02d'", sign, hours, minutes)
}
