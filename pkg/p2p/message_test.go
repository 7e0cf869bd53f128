package p2p

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello peer")
	require.NoError(t, WriteEnvelope(&buf, CmdPing, payload))

	cmd, got, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdPing, cmd)
	assert.Equal(t, payload, got)
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, CmdVerAck, nil))

	cmd, got, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdVerAck, cmd)
	assert.Empty(t, got)
}

func TestEnvelopeRejectsCorruptedChecksum(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, CmdTx, []byte("transaction bytes")))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff // corrupt the last payload byte without touching the header

	_, _, err := ReadEnvelope(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestEnvelopeRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, CmdPing, nil))
	raw := buf.Bytes()
	raw[0] ^= 0xff

	_, _, err := ReadEnvelope(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "version", CmdVersion.String())
	assert.Equal(t, "getheaders", CmdGetHeaders.String())
}
