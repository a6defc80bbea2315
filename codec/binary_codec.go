package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"t2rpc/message"
)

// BinaryCodec lays an Envelope out field by field in network byte order:
//
//	int32 × 7         function, packet type, branch, system, sub system, sender, packet id
//	route × 2         target, send (message.RouteInfoSize bytes each)
//	int32 × 2         error no, return code
//	u16 + bytes       error info
//	int32 × 2         issue type, sequence no
//	int32 × 3         company, sender company, internal license
//	u32 + bytes × 4   content, key info, app data, app reserved
type BinaryCodec struct{}

const fixedEnvelopeSize = 7*4 + 2*message.RouteInfoSize + 2*4 + 2 + 2*4 + 3*4 + 4*4

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.Envelope)
	if !ok {
		return nil, fmt.Errorf("%w: BinaryCodec wants *message.Envelope, got %T", ErrUnsupported, v)
	}
	if len(msg.ErrorInfo) > math.MaxUint16 {
		return nil, fmt.Errorf("codec: error info too long (%d bytes)", len(msg.ErrorInfo))
	}

	total := fixedEnvelopeSize + len(msg.ErrorInfo) + len(msg.Content) + len(msg.KeyInfo) + len(msg.AppData) + len(msg.AppReserved)
	buf := make([]byte, 0, total)

	be := binary.BigEndian
	put32 := func(n int32) { buf = be.AppendUint32(buf, uint32(n)) }

	put32(msg.FunctionNo)
	put32(int32(msg.PacketType))
	put32(msg.BranchNo)
	put32(msg.SystemNo)
	put32(msg.SubSystemNo)
	put32(msg.SenderID)
	put32(msg.PacketID)

	var err error
	if buf, err = msg.TargetInfo.AppendBinary(buf); err != nil {
		return nil, err
	}
	if buf, err = msg.SendInfo.AppendBinary(buf); err != nil {
		return nil, err
	}

	put32(msg.ErrorNo)
	put32(msg.ReturnCode)
	buf = be.AppendUint16(buf, uint16(len(msg.ErrorInfo)))
	buf = append(buf, msg.ErrorInfo...)

	put32(msg.IssueType)
	put32(msg.SequenceNo)
	put32(msg.CompanyID)
	put32(msg.SenderCompanyID)
	put32(msg.InternalLicense)

	for _, b := range [][]byte{msg.Content, msg.KeyInfo, msg.AppData, msg.AppReserved} {
		buf = be.AppendUint32(buf, uint32(len(b)))
		buf = append(buf, b...)
	}
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.Envelope)
	if !ok {
		return fmt.Errorf("%w: BinaryCodec wants *message.Envelope, got %T", ErrUnsupported, v)
	}

	r := reader{data: data}
	var out message.Envelope

	out.FunctionNo = r.i32()
	out.PacketType = message.PacketType(r.i32())
	out.BranchNo = r.i32()
	out.SystemNo = r.i32()
	out.SubSystemNo = r.i32()
	out.SenderID = r.i32()
	out.PacketID = r.i32()

	if b := r.next(message.RouteInfoSize); b != nil {
		if err := out.TargetInfo.UnmarshalBinary(b); err != nil {
			return err
		}
	}
	if b := r.next(message.RouteInfoSize); b != nil {
		if err := out.SendInfo.UnmarshalBinary(b); err != nil {
			return err
		}
	}

	out.ErrorNo = r.i32()
	out.ReturnCode = r.i32()
	out.ErrorInfo = string(r.next(int(r.u16())))

	out.IssueType = r.i32()
	out.SequenceNo = r.i32()
	out.CompanyID = r.i32()
	out.SenderCompanyID = r.i32()
	out.InternalLicense = r.i32()

	out.Content = r.blob()
	out.KeyInfo = r.blob()
	out.AppData = r.blob()
	out.AppReserved = r.blob()

	if r.err != nil {
		return r.err
	}
	if r.off != len(data) {
		return fmt.Errorf("codec: %d trailing bytes after envelope", len(data)-r.off)
	}
	*msg = out
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// reader is a bounds-checked cursor; after the first short read every call
// returns zero values and err stays set.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: want %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) i32() int32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) u16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// blob copies so the envelope does not pin the frame buffer.
func (r *reader) blob() []byte {
	b := r.next(int(uint32(r.i32())))
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
