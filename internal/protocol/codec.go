package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tilesim/tilesim/internal/world"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrMalformed     = errors.New("protocol: malformed batch")
	ErrUnknownOpcode = errors.New("protocol: unknown opcode")
)

// MaxBatch bounds the number of messages decoded from one payload.
const MaxBatch = 4096

// A batch is a msgpack array of [opcode, body] pairs. Struct bodies are
// array-encoded, so field order is part of the wire format.

func EncodeClientBatch(msgs ...ClientMessage) ([]byte, error) {
	ops := make([]Opcode, len(msgs))
	bodies := make([]any, len(msgs))
	for i, m := range msgs {
		ops[i], bodies[i] = m.Opcode(), m
	}
	return encodeBatch(ops, bodies)
}

func EncodeServerBatch(msgs ...ServerMessage) ([]byte, error) {
	ops := make([]Opcode, len(msgs))
	bodies := make([]any, len(msgs))
	for i, m := range msgs {
		ops[i], bodies[i] = m.Opcode(), m
	}
	return encodeBatch(ops, bodies)
}

func encodeBatch(ops []Opcode, bodies []any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseArrayEncodedStructs(true)
	if err := enc.EncodeArrayLen(len(ops)); err != nil {
		return nil, err
	}
	for i, op := range ops {
		if err := enc.EncodeArrayLen(2); err != nil {
			return nil, err
		}
		if err := enc.EncodeUint8(uint8(op)); err != nil {
			return nil, err
		}
		if err := enc.Encode(bodies[i]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", op, err)
		}
	}
	return buf.Bytes(), nil
}

func DecodeClientBatch(data []byte) ([]ClientMessage, error) {
	var out []ClientMessage
	err := decodeBatch(data, func(op Opcode) any {
		m := newClientMessage(op)
		if m == nil {
			return nil
		}
		out = append(out, m)
		return m
	})
	return out, err
}

func DecodeServerBatch(data []byte) ([]ServerMessage, error) {
	var out []ServerMessage
	err := decodeBatch(data, func(op Opcode) any {
		m := newServerMessage(op)
		if m == nil {
			return nil
		}
		out = append(out, m)
		return m
	})
	return out, err
}

// decodeBatch is all-or-nothing at the envelope level: a structural error
// anywhere fails the whole payload.
func decodeBatch(data []byte, alloc func(Opcode) any) error {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n < 0 || n > MaxBatch {
		return fmt.Errorf("%w: batch length %d", ErrMalformed, n)
	}
	for i := 0; i < n; i++ {
		pair, err := dec.DecodeArrayLen()
		if err != nil || pair != 2 {
			return fmt.Errorf("%w: entry %d is not an [opcode, body] pair", ErrMalformed, i)
		}
		raw, err := dec.DecodeUint8()
		if err != nil {
			return fmt.Errorf("%w: entry %d opcode: %v", ErrMalformed, i, err)
		}
		op := Opcode(raw)
		m := alloc(op)
		if m == nil {
			return fmt.Errorf("%w: %d", ErrUnknownOpcode, raw)
		}
		if err := dec.Decode(m); err != nil {
			return fmt.Errorf("%w: %s body: %v", ErrMalformed, op, err)
		}
	}
	if r.Len() > 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return nil
}

// DecodeMsgpack reads the array-encoded body and requires both tile layers
// to be exactly one chunk long.
func (m *ChunkSync) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 5 {
		return fmt.Errorf("chunk sync has %d fields, want 5", n)
	}
	if m.CX, err = dec.DecodeUint16(); err != nil {
		return err
	}
	if m.CY, err = dec.DecodeUint16(); err != nil {
		return err
	}
	if m.Seq, err = dec.DecodeUint32(); err != nil {
		return err
	}
	for _, dst := range []*[world.ChunkArea]uint8{&m.FG, &m.BG} {
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		if len(b) != world.ChunkArea {
			return fmt.Errorf("chunk layer has %d tiles, want %d", len(b), world.ChunkArea)
		}
		copy(dst[:], b)
	}
	return nil
}
