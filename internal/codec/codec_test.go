package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/eventcore/internal/codec"
	"github.com/ILLUVRSE/eventcore/internal/events"
)

type orderPlaced struct {
	OrderID string `json:"order_id"`
}

func TestJSONCodecRoundTrip(t *testing.T) {
	reg := codec.NewRegistry(events.FamilyDomain)
	reg.Register("order.placed", func() interface{} { return &orderPlaced{} })
	c := codec.NewJSONCodec(reg)

	encoded, err := c.Encode("order.placed", &orderPlaced{OrderID: "o-1"})
	require.NoError(t, err)

	decoded, err := c.Decode("order.placed", encoded)
	require.NoError(t, err)

	got, ok := decoded.(*orderPlaced)
	require.True(t, ok)
	assert.Equal(t, "o-1", got.OrderID)
}

func TestJSONCodecDecodeUnknownEventName(t *testing.T) {
	reg := codec.NewRegistry(events.FamilyDomain)
	c := codec.NewJSONCodec(reg)

	_, err := c.Decode("unknown.event", []byte(`{}`))
	require.Error(t, err)
	var codecErr *events.CodecError
	assert.ErrorAs(t, err, &codecErr)
}

func TestJSONCodecEncodeUnmarshalableValue(t *testing.T) {
	reg := codec.NewRegistry(events.FamilyDomain)
	c := codec.NewJSONCodec(reg)

	_, err := c.Encode("bad.event", func() {})
	require.Error(t, err)
	var codecErr *events.CodecError
	assert.ErrorAs(t, err, &codecErr)
}
