package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowResult_EncodeDecode(t *testing.T) {
	in := FlowResult{
		RequestID: "req-1",
		Code:      ResponseOK,
		Purchases: []Purchase{{
			SKUs:          []string{"gold_monthly"},
			PurchaseToken: "t1",
			Signature:     DebugSignature("gold_monthly", ProductTypeSubscription),
			AutoRenewing:  Bool(true),
		}},
	}

	data, err := EncodeFlowResult(in)
	require.NoError(t, err)

	out, err := DecodeFlowResult(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.Result().OK())
}

func TestDecodeFlowResult_Malformed(t *testing.T) {
	for _, payload := range []string{"", "not json", `{"code":99}`, `[]`} {
		_, err := DecodeFlowResult([]byte(payload))
		assert.Error(t, err, payload)
	}
}
