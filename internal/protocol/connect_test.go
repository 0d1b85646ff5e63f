package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptorShortForm(t *testing.T) {
	target, err := ParseDescriptor("db1.example.com:1522/ORCLPDB")
	require.NoError(t, err)
	assert.Equal(t, "db1.example.com", target.Host)
	assert.Equal(t, 1522, target.Port)
	assert.Equal(t, "ORCLPDB", target.ServiceName)
	assert.Equal(t, "tcp", target.Protocol)
}

func TestParseDescriptorShortFormDefaults(t *testing.T) {
	target, err := ParseDescriptor("localhost/FREEPDB1")
	require.NoError(t, err)
	assert.Equal(t, "localhost", target.Host)
	assert.Equal(t, 1521, target.Port, "port defaults to 1521")
	assert.Equal(t, "FREEPDB1", target.ServiceName)
}

func TestParseDescriptorParenForm(t *testing.T) {
	desc := "(DESCRIPTION=(ADDRESS=(PROTOCOL=tcp)(HOST=db2)(PORT=1526))(CONNECT_DATA=(SERVICE_NAME=SALES)))"
	target, err := ParseDescriptor(desc)
	require.NoError(t, err)
	assert.Equal(t, "db2", target.Host)
	assert.Equal(t, 1526, target.Port)
	assert.Equal(t, "SALES", target.ServiceName)
}

func TestParseDescriptorParenFormWithSID(t *testing.T) {
	desc := "(DESCRIPTION=(ADDRESS=(PROTOCOL=TCP)(HOST=legacy)(PORT=1521))(CONNECT_DATA=(SID=ORCL)))"
	target, err := ParseDescriptor(desc)
	require.NoError(t, err)
	assert.Equal(t, "ORCL", target.SID)
	assert.Empty(t, target.ServiceName)
}

func TestParseDescriptorRejectsBadInput(t *testing.T) {
	for _, bad := range []string{
		"(DESCRIPTION=(ADDRESS=(PORT=1521)))", // no HOST
		"(DESCRIPTION=(HOST=x)",               // unterminated
		"host:notaport/svc",
	} {
		_, err := ParseDescriptor(bad)
		assert.Error(t, err, bad)
	}
}

func TestDescriptorRendering(t *testing.T) {
	target := Target{Protocol: "tcp", Host: "db1", Port: 1521, ServiceName: "PDB1"}
	out := target.Descriptor("prog", "client-host", "scott")
	assert.True(t, strings.HasPrefix(out, "(DESCRIPTION="))
	assert.Contains(t, out, "(HOST=db1)")
	assert.Contains(t, out, "(PORT=1521)")
	assert.Contains(t, out, "(SERVICE_NAME=PDB1)")
	assert.Contains(t, out, "(USER=scott)")

	// The rendered form must itself parse back to the same endpoint.
	back, err := ParseDescriptor(out)
	require.NoError(t, err)
	assert.Equal(t, target.Host, back.Host)
	assert.Equal(t, target.Port, back.Port)
	assert.Equal(t, target.ServiceName, back.ServiceName)
}

func TestParseRedirectAddressFallsBack(t *testing.T) {
	fallback := Target{Protocol: "tcp", Host: "orig", Port: 1521, ServiceName: "SVC"}
	target, err := parseRedirectAddress("(ADDRESS=(PROTOCOL=tcp)(HOST=db3)(PORT=1523))", fallback)
	require.NoError(t, err)
	assert.Equal(t, "db3", target.Host)
	assert.Equal(t, 1523, target.Port)
	assert.Equal(t, "SVC", target.ServiceName, "connect data comes from the original target")
}
