package jsoncodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID    string `json:"id"`
	Price int    `json:"price"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := payload{ID: "EUR/USD", Price: 42}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"EUR/USD","price":42}`, string(data))

	var out payload
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	indented, err := MarshalIndent(in, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n  \"id\"")
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	in := payload{ID: "GBP/USD", Price: 7}

	require.NoError(t, Encode(buf, in))
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))

	var out payload
	require.NoError(t, Decode(buf, &out))
	assert.Equal(t, in, out)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"id":"x","price":1}`)))
	assert.False(t, Valid([]byte(`{"id":`)))
	assert.False(t, Valid(nil))
}
