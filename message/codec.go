package message

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/maxpoletaev/ringkv/membership"
)

var (
	ErrInvalidKind = errors.New("invalid message kind")
	ErrMalformed   = errors.New("malformed message")
)

const (
	fieldKind      protowire.Number = 1
	fieldFromHost  protowire.Number = 2
	fieldFromPort  protowire.Number = 3
	fieldHeartbeat protowire.Number = 4
	fieldNow       protowire.Number = 5
	fieldMembers   protowire.Number = 6
	fieldTxID      protowire.Number = 7
	fieldKey       protowire.Number = 8
	fieldValue     protowire.Number = 9
	fieldSuccess   protowire.Number = 10
)

const (
	entryHost        protowire.Number = 1
	entryPort        protowire.Number = 2
	entryHeartbeat   protowire.Number = 3
	entryLastUpdated protowire.Number = 4
)

// Marshal encodes the message in protobuf wire format. Zero-valued scalar
// fields are omitted, same as proto3 would do.
func Marshal(m *Message) ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, m.Kind)
	}

	b := make([]byte, 0, 32+len(m.Key)+len(m.Value)+len(m.Members)*16)
	b = appendUvarint(b, fieldKind, uint64(m.Kind))
	b = appendUvarint(b, fieldFromHost, uint64(m.From.Host))
	b = appendUvarint(b, fieldFromPort, uint64(m.From.Port))
	b = appendSvarint(b, fieldHeartbeat, m.Heartbeat)
	b = appendSvarint(b, fieldNow, m.Now)

	for i := range m.Members {
		b = protowire.AppendTag(b, fieldMembers, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalEntry(&m.Members[i]))
	}

	b = appendSvarint(b, fieldTxID, m.TxID)
	b = appendString(b, fieldKey, m.Key)
	b = appendString(b, fieldValue, m.Value)

	if m.Success {
		b = protowire.AppendTag(b, fieldSuccess, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}

	return b, nil
}

func marshalEntry(e *membership.Entry) []byte {
	b := make([]byte, 0, 24)
	b = appendUvarint(b, entryHost, uint64(e.Peer.Host))
	b = appendUvarint(b, entryPort, uint64(e.Peer.Port))
	b = appendSvarint(b, entryHeartbeat, e.Heartbeat)
	b = appendSvarint(b, entryLastUpdated, e.LastUpdated)

	return b
}

// Unmarshal decodes a message encoded by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (*Message, error) {
	m := &Message{}

	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMembers && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}

			e, err := unmarshalEntry(v)
			if err != nil {
				return 0, err
			}

			m.Members = append(m.Members, e)

			return n, nil

		case (num == fieldKey || num == fieldValue) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return n, nil
			}

			if num == fieldKey {
				m.Key = v
			} else {
				m.Value = v
			}

			return n, nil

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n, nil
			}

			switch num {
			case fieldKind:
				if v > math.MaxUint8 {
					return 0, fmt.Errorf("%w: kind %d out of range", ErrMalformed, v)
				}

				m.Kind = Kind(v)
			case fieldFromHost:
				if v > math.MaxUint32 {
					return 0, fmt.Errorf("%w: host %d out of range", ErrMalformed, v)
				}

				m.From.Host = uint32(v)
			case fieldFromPort:
				if v > math.MaxUint16 {
					return 0, fmt.Errorf("%w: port %d out of range", ErrMalformed, v)
				}

				m.From.Port = uint16(v)
			case fieldHeartbeat:
				m.Heartbeat = protowire.DecodeZigZag(v)
			case fieldNow:
				m.Now = protowire.DecodeZigZag(v)
			case fieldTxID:
				m.TxID = protowire.DecodeZigZag(v)
			case fieldSuccess:
				m.Success = protowire.DecodeBool(v)
			}

			return n, nil
		}

		return protowire.ConsumeFieldValue(num, typ, b), nil
	})

	if err != nil {
		return nil, err
	}

	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, m.Kind)
	}

	return m, nil
}

func unmarshalEntry(b []byte) (membership.Entry, error) {
	var e membership.Entry

	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return n, nil
		}

		switch num {
		case entryHost:
			if v > math.MaxUint32 {
				return 0, fmt.Errorf("%w: entry host %d out of range", ErrMalformed, v)
			}

			e.Peer.Host = uint32(v)
		case entryPort:
			if v > math.MaxUint16 {
				return 0, fmt.Errorf("%w: entry port %d out of range", ErrMalformed, v)
			}

			e.Peer.Port = uint16(v)
		case entryHeartbeat:
			e.Heartbeat = protowire.DecodeZigZag(v)
		case entryLastUpdated:
			e.LastUpdated = protowire.DecodeZigZag(v)
		}

		return n, nil
	})

	return e, err
}

// consumeFields walks over the top-level fields of b, calling fn for the
// value of each one. fn returns the number of bytes it consumed, or a
// negative protowire error code.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}

		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}

		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}

		b = b[n:]
	}

	return nil
}

func appendUvarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendSvarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendString(b, s)
}
