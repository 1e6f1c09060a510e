package mpi

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName is the gRPC content-subtype of the coordinator protocol.
const codecName = "mpiwire"

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// wireMessage is a coordinator message with a hand-written protobuf
// encoding.
type wireMessage interface {
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}

// wireCodec encodes wireMessages in protobuf wire format.
type wireCodec struct{}

func (wireCodec) Name() string { return codecName }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("mpiwire: cannot marshal %T", v)
	}
	return m.marshal(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("mpiwire: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}

// collectiveRequest is the wire form of request.
//
//	1 rank    sint64
//	2 seq     uint64
//	3 kind    sint64
//	4 op      sint64
//	5 root    sint64
//	6 dest    sint64
//	7 source  sint64
//	8 data    packed fixed64 (float64 bits)
type collectiveRequest struct {
	req request
}

func (m *collectiveRequest) marshal(b []byte) []byte {
	q := &m.req
	b = appendInt(b, 1, q.rank)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, q.seq)
	b = appendInt(b, 3, int(q.kind))
	b = appendInt(b, 4, int(q.op))
	b = appendInt(b, 5, q.root)
	b = appendInt(b, 6, q.dest)
	b = appendInt(b, 7, q.source)
	return appendFloats(b, 8, q.data)
}

func (m *collectiveRequest) unmarshal(b []byte) error {
	q := &m.req
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt(typ, b, &q.rank)
		case 2:
			if typ != protowire.VarintType {
				return -1, errWireType
			}
			v, n := protowire.ConsumeVarint(b)
			q.seq = v
			return n, nil
		case 3:
			var k int
			n, err := consumeInt(typ, b, &k)
			q.kind = kind(k)
			return n, err
		case 4:
			var op int
			n, err := consumeInt(typ, b, &op)
			q.op = Op(op)
			return n, err
		case 5:
			return consumeInt(typ, b, &q.root)
		case 6:
			return consumeInt(typ, b, &q.dest)
		case 7:
			return consumeInt(typ, b, &q.source)
		case 8:
			return consumeFloats(typ, b, &q.data)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// collectiveResponse is the wire form of reply, or of the error that ended
// the collective.
//
//	1 data        packed fixed64
//	2 counts      packed sint64
//	3 error kind  sint64 (0 none, 1 abort, 2 communication)
//	4 message     string
//	5 abort rank  sint64
//	6 abort code  sint64
type collectiveResponse struct {
	reply     reply
	errKind   int
	message   string
	abortRank int
	abortCode int
}

const (
	wireErrNone = iota
	wireErrAbort
	wireErrComm
)

func (m *collectiveResponse) marshal(b []byte) []byte {
	b = appendFloats(b, 1, m.reply.data)
	if len(m.reply.counts) > 0 {
		var packed []byte
		for _, c := range m.reply.counts {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(c)))
		}
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendInt(b, 3, m.errKind)
	if m.message != "" {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, m.message)
	}
	b = appendInt(b, 5, m.abortRank)
	return appendInt(b, 6, m.abortCode)
}

func (m *collectiveResponse) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeFloats(typ, b, &m.reply.data)
		case 2:
			if typ != protowire.BytesType {
				return -1, errWireType
			}
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return k, nil
				}
				m.reply.counts = append(m.reply.counts, int(protowire.DecodeZigZag(v)))
				packed = packed[k:]
			}
			return n, nil
		case 3:
			return consumeInt(typ, b, &m.errKind)
		case 4:
			if typ != protowire.BytesType {
				return -1, errWireType
			}
			s, n := protowire.ConsumeString(b)
			m.message = s
			return n, nil
		case 5:
			return consumeInt(typ, b, &m.abortRank)
		case 6:
			return consumeInt(typ, b, &m.abortCode)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// abortRequest announces an abort to the coordinator.
//
//	1 rank     sint64
//	2 code     sint64
//	3 message  string
type abortRequest struct {
	rank    int
	code    int
	message string
}

func (m *abortRequest) marshal(b []byte) []byte {
	b = appendInt(b, 1, m.rank)
	b = appendInt(b, 2, m.code)
	if m.message != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.message)
	}
	return b
}

func (m *abortRequest) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt(typ, b, &m.rank)
		case 2:
			return consumeInt(typ, b, &m.code)
		case 3:
			if typ != protowire.BytesType {
				return -1, errWireType
			}
			s, n := protowire.ConsumeString(b)
			m.message = s
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// abortResponse is empty.
type abortResponse struct{}

func (*abortResponse) marshal(b []byte) []byte { return b }

func (*abortResponse) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

var errWireType = errors.New("mpiwire: unexpected wire type")

// appendInt appends a zigzag varint field, omitting zero like proto3.
func appendInt(b []byte, num protowire.Number, v int) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

func appendFloats(b []byte, num protowire.Number, vs []float64) []byte {
	if len(vs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(vs)*8))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func consumeInt(typ protowire.Type, b []byte, dst *int) (int, error) {
	if typ != protowire.VarintType {
		return -1, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = int(protowire.DecodeZigZag(v))
	}
	return n, nil
}

func consumeFloats(typ protowire.Type, b []byte, dst *[]float64) (int, error) {
	if typ != protowire.BytesType {
		return -1, errWireType
	}
	packed, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	if len(packed)%8 != 0 {
		return -1, fmt.Errorf("mpiwire: packed doubles of %d bytes", len(packed))
	}
	out := make([]float64, 0, len(*dst)+len(packed)/8)
	out = append(out, *dst...)
	for len(packed) > 0 {
		v, k := protowire.ConsumeFixed64(packed)
		out = append(out, math.Float64frombits(v))
		packed = packed[k:]
	}
	*dst = out
	return n, nil
}

// consumeFields walks the fields of a message. field returns the number of
// value bytes it consumed, negative for a protowire parse error.
func consumeFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}
