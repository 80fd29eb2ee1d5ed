package bus

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// PushMessage is the body of a push-delivered bus message as posted to a
// service's /pubsub endpoint: the payload travels base64-encoded under
// message.data with attributes alongside.
type PushMessage struct {
	Message struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes,omitempty"`
		MessageID  string            `json:"messageId,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription,omitempty"`
}

// DecodePush reads a push-delivery body and returns the decoded payload
// bytes and attributes. An empty data field yields (nil, attrs, nil):
// callers acknowledge and drop.
func DecodePush(r io.Reader) ([]byte, map[string]string, error) {
	var pm PushMessage
	if err := json.NewDecoder(r).Decode(&pm); err != nil {
		return nil, nil, fmt.Errorf("push decode: %w", err)
	}
	if pm.Message.Data == "" {
		return nil, pm.Message.Attributes, nil
	}
	raw, err := base64.StdEncoding.DecodeString(pm.Message.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("push data decode: %w", err)
	}
	return raw, pm.Message.Attributes, nil
}

// EncodePush wraps a payload in push-delivery form. Used by tests and the
// local development pusher.
func EncodePush(payload []byte, attrs map[string]string) ([]byte, error) {
	var pm PushMessage
	pm.Message.Data = base64.StdEncoding.EncodeToString(payload)
	pm.Message.Attributes = attrs
	return json.Marshal(pm)
}
