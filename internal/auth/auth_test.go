package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sijms-go-ora-thin/oracle/internal/wire"
)

func TestEncryptDecryptCBCRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := []byte("the quick brown fox")
	sealed, err := encryptCBC(key, plaintext)
	require.NoError(t, err)
	assert.Zero(t, len(sealed)%16, "ciphertext is block aligned")

	opened, err := decryptCBC(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened[:len(plaintext)])
}

func TestAuthPaddingAlwaysAdds(t *testing.T) {
	// Even an exact multiple of the block size gains a full extra block.
	exact := make([]byte, 32)
	padded := addAuthPadding(exact, 16)
	assert.Equal(t, 48, len(padded))

	short := make([]byte, 5)
	assert.Equal(t, 16, len(addAuthPadding(short, 16)))
}

func TestDecryptCBCRejectsPartialBlock(t *testing.T) {
	key := make([]byte, 16)
	_, err := decryptCBC(key, make([]byte, 17))
	assert.Error(t, err)
}

func TestAESKeyLengths(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		_, err := newAESBlock(make([]byte, n))
		assert.NoError(t, err)
	}
	_, err := newAESBlock(make([]byte, 20))
	assert.Error(t, err)
}

func TestTimezoneStatementShape(t *testing.T) {
	stmt := TimezoneStatement()
	assert.Regexp(t, regexp.MustCompile(`^ALTER SESSION SET TIME_ZONE='[+-]\d{2}:\d{2}'$`), stmt)
}

func TestPhaseOneMessageFraming(t *testing.T) {
	creds := Credentials{Username: "scott"}
	info := ClientInfo{Terminal: "unknown", Program: "prog", Machine: "host", PID: "42", OSUser: "tester"}
	msg := buildPhaseOneMessage(creds, info)

	r := wire.NewReadBuffer(msg)
	b, _ := r.GetByte()
	assert.Equal(t, byte(msgTypeFunction), b)
	b, _ = r.GetByte()
	assert.Equal(t, byte(funcAuthPhaseOne), b)
	b, _ = r.GetByte() // sequence
	assert.Equal(t, byte(1), b)
	b, _ = r.GetByte() // user presence
	assert.Equal(t, byte(1), b)
	userLen, err := r.GetUB()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), userLen)
	mode, err := r.GetUB()
	require.NoError(t, err)
	assert.Equal(t, uint64(authModeLogon), mode)
	b, _ = r.GetByte() // key/value pointer
	assert.Equal(t, byte(1), b)
	numPairs, err := r.GetUB()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), numPairs)
	r.GetByte() // authivl
	r.GetByte() // authovln
	user, err := r.GetClr()
	require.NoError(t, err)
	assert.Equal(t, "scott", string(user))

	key, val, _, err := r.GetKeyVal()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_TERMINAL", string(key))
	assert.Equal(t, "unknown", string(val))
}

func TestParseErrorFromBodyExtractsOraCode(t *testing.T) {
	body := append([]byte{9, 9, 9}, []byte("ORA-01017: invalid username/password; logon denied\x00junk")...)
	err := parseErrorFromBody(body)
	var oe *OracleError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 1017, oe.Code)
	assert.Contains(t, oe.Message, "invalid username/password")
}

func TestParseErrorFromBodyWithoutMarker(t *testing.T) {
	err := parseErrorFromBody([]byte{1, 2, 3})
	var oe *OracleError
	require.ErrorAs(t, err, &oe)
	assert.Zero(t, oe.Code)
}

func TestReadParamsCapturesVerifierType(t *testing.T) {
	w := wire.NewWriteBuffer()
	w.PutUB(2)
	w.PutKeyValString("AUTH_VFR_DATA", "AABBCC", verifierType12c)
	w.PutKeyValString("AUTH_SESSKEY", "DDEEFF", 0)

	r := wire.NewReadBuffer(w.Bytes())
	session := newSessionData()
	require.NoError(t, readParams(r, session))
	assert.Equal(t, uint32(verifierType12c), session.verifierType)
	assert.Equal(t, "AABBCC", session.params["AUTH_VFR_DATA"])
	assert.Equal(t, "DDEEFF", session.params["AUTH_SESSKEY"])
}

// Fast auth parameters carry an extra ub4 indicator before each key and
// value; the dedicated reader must consume those to stay in sync.
func TestReadFastAuthParams(t *testing.T) {
	w := wire.NewWriteBuffer()
	w.PutUB(2)
	// key indicator + key, value indicator + value, flags
	w.PutUB(1)
	w.PutCLR([]byte("AUTH_VFR_DATA"))
	w.PutUB(1)
	w.PutCLR([]byte("AABBCC"))
	w.PutUB(verifierType12c)
	w.PutUB(1)
	w.PutCLR([]byte("AUTH_PBKDF2_VGEN_COUNT"))
	w.PutUB(1)
	w.PutCLR([]byte("4096"))
	w.PutUB(0)

	s := wire.NewStaticStream(w.Bytes())
	session := newSessionData()
	require.NoError(t, readFastAuthParams(s, session))
	assert.Equal(t, uint32(verifierType12c), session.verifierType)
	assert.Equal(t, "AABBCC", session.params["AUTH_VFR_DATA"])
	assert.Equal(t, "4096", session.params["AUTH_PBKDF2_VGEN_COUNT"])
	assert.True(t, s.AtEnd())
}

func TestGenerateVerifierRequiresServerData(t *testing.T) {
	session := newSessionData()
	_, _, _, err := generateVerifier("secret", session)
	assert.Error(t, err, "missing AUTH_VFR_DATA must fail early")

	session.params["AUTH_VFR_DATA"] = "ZZ" // not hex
	session.verifierType = verifierType12c
	_, _, _, err = generateVerifier("secret", session)
	assert.Error(t, err)
}

func Test11gVerifierProducesSealedPassword(t *testing.T) {
	session := newSessionData()
	session.verifierType = verifierType11g1
	session.params["AUTH_VFR_DATA"] = "AABBCCDDEEFF00112233"
	// 48-byte encrypted server key (three AES blocks), hex encoded.
	session.params["AUTH_SESSKEY"] = hexUpper(make([]byte, 48))

	sessionKey, speedyKey, encodedPassword, err := generateVerifier("tiger", session)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionKey)
	assert.Empty(t, speedyKey, "the SHA1 path has no speedy key")
	assert.NotEmpty(t, encodedPassword)
	assert.NotNil(t, session.comboKey)
	assert.Len(t, session.comboKey, 24)
}
