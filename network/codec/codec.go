package codec

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/meridianlabs/meridian-go/model/messages"
)

// Message codes prefix every encoded envelope so the receiver can allocate
// the right message type before decoding the body.
const (
	CodeMin uint8 = iota + 1

	// observer push stream
	CodeOrderedBlock
	CodeBlockPayload

	// subscribe handshake
	CodeSubscribeRequest
	CodeSubscribeResponse
	CodeUnsubscribeRequest

	CodeMax
)

// Encode serializes a message into an envelope: one code byte followed by the
// CBOR encoding of the message body.
func Encode(v interface{}) ([]byte, error) {

	var code uint8
	switch v.(type) {
	case *messages.OrderedBlockMessage:
		code = CodeOrderedBlock
	case *messages.BlockPayloadMessage:
		code = CodeBlockPayload
	case *messages.SubscribeRequest:
		code = CodeSubscribeRequest
	case *messages.SubscribeResponse:
		code = CodeSubscribeResponse
	case *messages.UnsubscribeRequest:
		code = CodeUnsubscribeRequest
	default:
		return nil, errors.Errorf("invalid message type (%T)", v)
	}

	body, err := cbor.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode message body (%T)", v)
	}

	data := make([]byte, 0, len(body)+1)
	data = append(data, code)
	data = append(data, body...)
	return data, nil
}

// Decode deserializes an envelope produced by Encode.
func Decode(data []byte) (interface{}, error) {

	if len(data) < 2 {
		return nil, errors.Errorf("envelope too short (%d bytes)", len(data))
	}

	var v interface{}
	code := data[0]
	switch code {
	case CodeOrderedBlock:
		v = &messages.OrderedBlockMessage{}
	case CodeBlockPayload:
		v = &messages.BlockPayloadMessage{}
	case CodeSubscribeRequest:
		v = &messages.SubscribeRequest{}
	case CodeSubscribeResponse:
		v = &messages.SubscribeResponse{}
	case CodeUnsubscribeRequest:
		v = &messages.UnsubscribeRequest{}
	default:
		return nil, errors.Errorf("invalid message code (%d)", code)
	}

	err := cbor.Unmarshal(data[1:], v)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode message body (code %d)", code)
	}

	return v, nil
}
