package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

var errEmptyType = errors.New("frame has no type")

// codec maps envelopes to websocket frames. Text frames carry JSON, binary
// frames carry CBOR with the same field names.
type codec interface {
	frameType() int
	encode(env Envelope) ([]byte, error)
	// decode splits a frame into its type and the still-encoded data.
	decode(frame []byte) (string, []byte, error)
	unmarshal(data []byte, v interface{}) error
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("realtime: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{MaxNestedLevels: 8}.DecMode()
	if err != nil {
		panic("realtime: CBOR decoder initialization failed: " + err.Error())
	}
}

func codecFor(messageType int) (codec, bool) {
	switch messageType {
	case websocket.TextMessage:
		return jsonCodec{}, true
	case websocket.BinaryMessage:
		return cborCodec{}, true
	}
	return nil, false
}

type jsonCodec struct{}

func (jsonCodec) frameType() int { return websocket.TextMessage }

func (jsonCodec) encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (jsonCodec) decode(frame []byte) (string, []byte, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return "", nil, fmt.Errorf("json frame: %w", err)
	}
	if raw.Type == "" {
		return "", nil, errEmptyType
	}
	return raw.Type, raw.Data, nil
}

func (jsonCodec) unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

type cborCodec struct{}

func (cborCodec) frameType() int { return websocket.BinaryMessage }

func (cborCodec) encode(env Envelope) ([]byte, error) {
	return cborEnc.Marshal(env)
}

func (cborCodec) decode(frame []byte) (string, []byte, error) {
	var raw struct {
		Type string          `cbor:"type"`
		Data cbor.RawMessage `cbor:"data"`
	}
	if err := cborDec.Unmarshal(frame, &raw); err != nil {
		return "", nil, fmt.Errorf("cbor frame: %w", err)
	}
	if raw.Type == "" {
		return "", nil, errEmptyType
	}
	return raw.Type, raw.Data, nil
}

func (cborCodec) unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return cborDec.Unmarshal(data, v)
}
