package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrUnknownPacket is returned for envelopes with an unrecognized type.
	ErrUnknownPacket = errors.New("unknown packet type")
	// ErrMalformed is returned when a payload does not match its schema.
	ErrMalformed = errors.New("malformed packet")
)

// ClientPacket is a decoded client frame. Exactly one payload field is set,
// matching Type.
type ClientPacket struct {
	Type       PacketType
	Join       *JoinPacket
	Spectate   *SpectatePacket
	Input      *InputPacket
	Disconnect *DisconnectPacket
}

// Codec frames packets for one wire encoding.
type Codec interface {
	Name() string
	// Binary reports whether frames should be sent as binary messages.
	Binary() bool
	Encode(t PacketType, payload any) ([]byte, error)
	DecodeClient(data []byte) (ClientPacket, error)
}

// CodecFor returns the codec for an encoding name. Anything other than
// "msgpack" gets JSON.
func CodecFor(name string) Codec {
	if strings.EqualFold(name, "msgpack") {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// JSONCodec encodes envelopes as JSON text.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(t PacketType, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Type PacketType `json:"type"`
		Data any        `json:"data,omitempty"`
	}{t, payload})
}

func (JSONCodec) DecodeClient(data []byte) (ClientPacket, error) {
	var env struct {
		Type PacketType      `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientPacket{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decodePayload(env.Type, env.Data, func(raw []byte, v any) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, v)
	})
}

// MsgpackCodec encodes envelopes as MessagePack binary frames.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }
func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Encode(t PacketType, payload any) ([]byte, error) {
	return msgpack.Marshal(&struct {
		Type PacketType `msgpack:"type"`
		Data any        `msgpack:"data,omitempty"`
	}{t, payload})
}

func (MsgpackCodec) DecodeClient(data []byte) (ClientPacket, error) {
	var env struct {
		Type PacketType         `msgpack:"type"`
		Data msgpack.RawMessage `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return ClientPacket{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decodePayload(env.Type, env.Data, func(raw []byte, v any) error {
		if len(raw) == 0 {
			return nil
		}
		return msgpack.Unmarshal(raw, v)
	})
}

func decodePayload(t PacketType, raw []byte, unmarshal func([]byte, any) error) (ClientPacket, error) {
	pkt := ClientPacket{Type: t}
	var err error
	switch t {
	case TypeJoin:
		pkt.Join = &JoinPacket{}
		if err = unmarshal(raw, pkt.Join); err == nil {
			pkt.Join.Name, err = cleanName(pkt.Join.Name)
		}
	case TypeSpectate:
		pkt.Spectate = &SpectatePacket{}
		if err = unmarshal(raw, pkt.Spectate); err == nil && pkt.Spectate.Name != "" {
			pkt.Spectate.Name, err = cleanName(pkt.Spectate.Name)
		}
	case TypeInput:
		pkt.Input = &InputPacket{}
		err = unmarshal(raw, pkt.Input)
	case TypeDisconnect:
		pkt.Disconnect = &DisconnectPacket{}
		err = unmarshal(raw, pkt.Disconnect)
	default:
		return ClientPacket{}, fmt.Errorf("%w: %q", ErrUnknownPacket, t)
	}
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return ClientPacket{}, err
		}
		return ClientPacket{}, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
	}
	return pkt, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrMalformed)
	}
	if r := []rune(name); len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}
	return name, nil
}
