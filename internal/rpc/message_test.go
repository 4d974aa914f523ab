package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	p, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"listQueues"}`), true)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, p.Kind)
	assert.Equal(t, "listQueues", p.Method)
}

func TestDecodeNotification(t *testing.T) {
	p, err := Decode([]byte(`{"jsonrpc":"2.0","method":"jobStateChanged","params":{"moleQueueId":1}}`), true)
	require.NoError(t, err)
	assert.Equal(t, KindNotification, p.Kind)
}

func TestDecodeResult(t *testing.T) {
	p, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`), true)
	require.NoError(t, err)
	assert.Equal(t, KindResult, p.Kind)
}

func TestDecodeErrorResponse(t *testing.T) {
	p, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":3,"message":"bad id","data":9999999}}`), true)
	require.NoError(t, err)
	assert.Equal(t, KindErrorResponse, p.Kind)
	require.NotNil(t, p.Err)
	assert.Equal(t, CodeInvalidMoleQueueID, p.Err.Code)
}

func TestDecodeStrictRejectsUnknownKeys(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"x","bogus":true}`), true)
	assert.Error(t, err)
}

func TestDecodeLooseToleratesUnknownKeys(t *testing.T) {
	p, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"x","bogus":true}`), false)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, p.Kind)
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`), false)
	assert.Error(t, err)
}

func TestDecodeBatch(t *testing.T) {
	packets, err := DecodeBatch([]byte(`[{"jsonrpc":"2.0","id":1,"method":"a"},{"jsonrpc":"2.0","id":2,"method":"b"}]`), true)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, "a", packets[0].Method)
	assert.Equal(t, "b", packets[1].Method)
}

func TestEncodeRequestRoundTrip(t *testing.T) {
	data, err := EncodeRequest(42, "submitJob", map[string]string{"queue": "local"})
	require.NoError(t, err)

	p, err := Decode(data, true)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, p.Kind)
	assert.Equal(t, "submitJob", p.Method)
}

func TestPendingTableRoundTrip(t *testing.T) {
	table := NewPendingTable()
	id := table.Register("submitJob")

	method, ok := table.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, "submitJob", method)

	// A second resolve of the same id finds nothing — already consumed.
	_, ok = table.Resolve(id)
	assert.False(t, ok)
}

func TestPendingTableUnknownID(t *testing.T) {
	table := NewPendingTable()
	_, ok := table.Resolve(999999)
	assert.False(t, ok)
}
