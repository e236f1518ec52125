// Package webhook ingests provider WhatsApp events, decides per conversation
// whether automation may answer, and forwards coalesced messages to the
// tenant's automation endpoint.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"clinic_webhook_backend/internal/leads"
)

// Provider event discriminators.
const (
	EventMessageInNew  = "message:in:new"
	EventMessageOutNew = "message:out:new"
)

// Payload is the typed view of a provider delivery. Only the fields the
// router reads are declared; forwarding works on the raw bytes.
type Payload struct {
	Event  string      `json:"event"`
	Device Device      `json:"device"`
	Data   MessageData `json:"data"`
}

// Device identifies the provider number that received the event.
type Device struct {
	ID string `json:"id"`
}

// MessageData is the data object of message events.
type MessageData struct {
	ID         string   `json:"id"`
	From       string   `json:"from"`
	FromNumber string   `json:"fromNumber"`
	To         string   `json:"to"`
	ToNumber   string   `json:"toNumber"`
	Body       string   `json:"body"`
	Flow       string   `json:"flow"`
	Agent      AgentRef `json:"agent"`
	Meta       Meta     `json:"meta"`
	Chat       Chat     `json:"chat"`
}

// Meta carries provider-computed message flags.
type Meta struct {
	IsFirstMessage bool `json:"isFirstMessage"`
}

// Chat is the conversation the message belongs to.
type Chat struct {
	ID      string  `json:"id"`
	Contact Contact `json:"contact"`
}

// Contact is the chat's contact record.
type Contact struct {
	Metadata []leads.MetadataEntry `json:"metadata"`
}

// AgentRef is the console agent that sent an outbound message. The provider
// sends either a bare id string or an object with an id.
type AgentRef struct {
	ID string
}

// UnmarshalJSON accepts "id", {"id": "..."} and null.
func (a *AgentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		a.ID = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &a.ID)
	}
	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.ID = obj.ID
	if a.ID == "" {
		a.ID = obj.Name
	}
	return nil
}

// Present reports whether a human agent authored the message.
func (a AgentRef) Present() bool {
	return strings.TrimSpace(a.ID) != ""
}

// ParsePayload decodes raw into a Payload.
func ParsePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	return p, nil
}

// ReplaceBody returns raw with data.body set to body. Every other field is
// passed through as received.
func ReplaceBody(raw []byte, body string) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	data := map[string]json.RawMessage{}
	if existing, ok := envelope["data"]; ok && len(existing) > 0 && !bytes.Equal(existing, []byte("null")) {
		if err := json.Unmarshal(existing, &data); err != nil {
			return nil, fmt.Errorf("decode payload data: %w", err)
		}
	}

	encodedBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	data["body"] = encodedBody

	encodedData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	envelope["data"] = encodedData
	return json.Marshal(envelope)
}
