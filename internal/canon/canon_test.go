package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysAndCompacts(t *testing.T) {
	b, err := Marshal(map[string]any{
		"zeta":  1,
		"alpha": "x",
		"mid":   map[string]any{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mid":{"a":1,"b":2},"zeta":1}`, string(b))
}

func TestMarshal_StructFieldOrderIrrelevant(t *testing.T) {
	type ab struct {
		B int    `json:"b"`
		A string `json:"a"`
	}
	type ba struct {
		A string `json:"a"`
		B int    `json:"b"`
	}

	first, err := Marshal(ab{B: 7, A: "x"})
	require.NoError(t, err)
	second, err := Marshal(ba{A: "x", B: 7})
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestMarshal_PreservesNumberLiterals(t *testing.T) {
	// Large int64 cents must survive without float mangling.
	b, err := Marshal(map[string]any{"cents": int64(9_007_199_254_740_993)})
	require.NoError(t, err)
	assert.Equal(t, `{"cents":9007199254740993}`, string(b))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	b, err := Marshal(map[string]any{"descriptor": "AT&T <wire>"})
	require.NoError(t, err)
	assert.Equal(t, `{"descriptor":"AT&T <wire>"}`, string(b))
}

func TestMarshal_ByteStableAcrossCalls(t *testing.T) {
	payload := map[string]any{
		"txns":   []any{map[string]any{"id": "a", "amount": -42}, map[string]any{"id": "b", "amount": 7}},
		"nested": map[string]any{"y": nil, "x": true},
	}

	first, err := Marshal(payload)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Marshal(payload)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHash_KnownVector(t *testing.T) {
	// sha256 of the literal bytes `{}`.
	h, err := Hash(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a", h)
	assert.Equal(t, h, HashBytes([]byte("{}")))
}

func TestHash_SensitiveToContent(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
