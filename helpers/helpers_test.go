package helpers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToStruct(t *testing.T) {
	v := struct {
		Market string          `json:"market"`
		Price  decimal.Decimal `json:"price"`
		Seq    int64           `json:"seq"`
	}{Market: "btc_usdt", Price: decimal.RequireFromString("30000.10"), Seq: 7}

	s, err := ToStruct(v)
	require.NoError(t, err)

	assert.Equal(t, "btc_usdt", s.Fields["market"].GetStringValue())
	assert.Equal(t, "30000.1", s.Fields["price"].GetStringValue())
	assert.Equal(t, float64(7), s.Fields["seq"].GetNumberValue())
}

func TestToStruct_RejectsNonObject(t *testing.T) {
	_, err := ToStruct([]int{1, 2})
	assert.Error(t, err)
}

func TestToJsonString(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ToJsonString(map[string]int{"a": 1}))
	assert.Equal(t, "", ToJsonString(func() {}))
}
