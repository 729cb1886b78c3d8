package response

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryCodeHasMessage(t *testing.T) {
	for code := ErrCodeMalformedJSON; code <= ErrCodeDeviceOperatorUnSupported; code++ {
		assert.NotEmpty(t, errors[code], "code %d", code)
	}
}

func TestMultiErrorJSON(t *testing.T) {
	cause := stderrors.New("not a opcUa manufacturer")
	me := NewMultiError(ErrDeviceNotFound("EQ-1"), ErrInvalidDevice(cause))
	data, err := json.Marshal(me)
	require.NoError(t, err)

	back := &MultiError{}
	require.NoError(t, json.Unmarshal(data, back))
	require.Equal(t, 2, back.Len())
	assert.Equal(t, ErrCodeDeviceNotFound, back.Errors()[0].(*responseError).GetCode())
	assert.Equal(t, "Device EQ-1 not found.", back.Errors()[0].(*responseError).Message)
	assert.Contains(t, back.Errors()[1].(*responseError).Message, "not a opcUa manufacturer")
	assert.True(t, IsResponseError(back.Errors()[1]))
}
