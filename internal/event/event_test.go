package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelopeRoundTrip(t *testing.T) {
	e := Event{Type: Update, Name: "progress", ShowName: "全局", ID: "task-1"}
	data := WithDownloaded(Data{"total_bytes": int64(100)}, 42)

	raw, err := MarshalEnvelope(e, data)
	require.NoError(t, err)

	var got Envelope
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, e, got.Event)
	assert.EqualValues(t, 42, got.Data["downloaded_bytes"])
	assert.EqualValues(t, 42, got.Data["Downloaded"])
}

func TestTaskData(t *testing.T) {
	data := TaskData("https://example.com/a.zip", "/tmp/a.zip", "a.zip", 2, 5)
	assert.Equal(t, "https://example.com/a.zip", data["URL"])
	assert.Equal(t, 2, data["Index"])
	assert.Equal(t, 5, data["Total"])
}

func TestErrorDataAndMsgData(t *testing.T) {
	data := ErrorData(errors.New("boom"))
	assert.Equal(t, "boom", data["Error"])

	msg := MsgData("下载已暂停")
	assert.Equal(t, "下载已暂停", msg["Text"])
}

func TestMarshalEnvelopeNilData(t *testing.T) {
	raw, err := MarshalEnvelope(Event{Type: Start}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":{"Type":"start","Name":"","ShowName":"","ID":""},"data":{}}`, string(raw))
}
