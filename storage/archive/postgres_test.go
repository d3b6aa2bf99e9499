package archive

import (
	"encoding/json"
	"testing"
	"time"

	"cdctrl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertArgs(t *testing.T) {
	received := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	args, err := insertArgs(models.Entry{
		Log: models.LogRecord{
			UUID:        "id",
			Message:     "m",
			LineNumber:  42,
			CodeSnippet: map[uint32]string{42: "x"},
		},
		Received: received,
	})
	require.NoError(t, err)
	require.Len(t, args, 10)

	assert.Equal(t, "id", args[0])
	assert.Equal(t, int64(42), args[4])
	assert.JSONEq(t, `[]`, string(args[5].([]byte)))
	assert.Nil(t, args[6].([]byte), "empty stack is stored as NULL")

	var snippet map[string]string
	require.NoError(t, json.Unmarshal(args[7].([]byte), &snippet))
	assert.Equal(t, "x", snippet["42"])
	assert.Equal(t, received, args[9])
}
