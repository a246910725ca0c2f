package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameShape(t *testing.T) {
	frame, err := EncodeFrame(KindNotice, NoticePayload{ProcessTaskID: "1", Data: "heads up"})
	require.NoError(t, err)

	s := string(frame)
	assert.True(t, strings.HasPrefix(s, "data: "))
	assert.True(t, strings.HasSuffix(s, "\n\n"))

	var decoded struct {
		Step string `json:"step"`
		Data struct {
			ProcessTaskID string `json:"process_task_id"`
			Data          string `json:"data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(s), "data: ")), &decoded))
	assert.Equal(t, "notice", decoded.Step)
	assert.Equal(t, "heads up", decoded.Data.Data)
}

func TestEncodeFrameDoesNotEscapeHTML(t *testing.T) {
	frame, err := EncodeFrame(KindTerminal, TerminalPayload{Data: "a && b <ok>"})
	require.NoError(t, err)
	assert.Contains(t, string(frame), "a && b <ok>")
	assert.NotContains(t, string(frame), "\\u0026")
}
