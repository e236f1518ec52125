package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentRefForms(t *testing.T) {
	cases := map[string]string{
		`{"data":{"agent":"a-1"}}`:               "a-1",
		`{"data":{"agent":{"id":"a-2"}}}`:        "a-2",
		`{"data":{"agent":{"name":"Dr. Ruiz"}}}`: "Dr. Ruiz",
		`{"data":{"agent":null}}`:                "",
		`{"data":{}}`:                            "",
	}
	for raw, want := range cases {
		p, err := ParsePayload([]byte(raw))
		require.NoError(t, err, raw)
		require.Equal(t, want, p.Data.Agent.ID, raw)
	}
}

func TestParseInboundPayload(t *testing.T) {
	raw := `{
		"event": "message:in:new",
		"device": {"id": "D1"},
		"data": {
			"from": "123@c.us", "fromNumber": "+123", "body": "hola",
			"meta": {"isFirstMessage": true},
			"chat": {"contact": {"metadata": [{"key": "lead_tracked", "value": true}]}}
		}
	}`
	p, err := ParsePayload([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, EventMessageInNew, p.Event)
	require.Equal(t, "D1", p.Device.ID)
	require.True(t, p.Data.Meta.IsFirstMessage)
	require.Len(t, p.Data.Chat.Contact.Metadata, 1)
	require.Equal(t, true, p.Data.Chat.Contact.Metadata[0].Value)
}

func TestReplaceBodyKeepsOtherFields(t *testing.T) {
	raw := []byte(`{"event":"message:in:new","device":{"id":"D1"},"data":{"from":"123@c.us","body":"a","meta":{"isFirstMessage":false},"n":12345678901234567890}}`)

	out, err := ReplaceBody(raw, "a a a")
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	data := decoded["data"].(map[string]interface{})
	require.Equal(t, "a a a", data["body"])
	require.Equal(t, "123@c.us", data["from"])
	require.Equal(t, "message:in:new", decoded["event"])
	require.Contains(t, string(out), "12345678901234567890", "numbers pass through untouched")
}

func TestReplaceBodyWithoutData(t *testing.T) {
	out, err := ReplaceBody([]byte(`{"event":"x"}`), "hi")
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"x","data":{"body":"hi"}}`, string(out))
}
