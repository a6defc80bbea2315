package codec

import (
	"errors"
	"testing"

	"t2rpc/message"
)

func sampleEnvelope() *message.Envelope {
	env := message.NewRequest(331100)
	env.BranchNo = 8
	env.SystemNo = 2
	env.SenderID = 77
	env.PacketID = 5
	env.ErrorNo = -12
	env.ErrorInfo = "余额不足"
	env.ReturnCode = 1
	env.Content = []byte{0x20, 0x01, 0x00}
	env.KeyInfo = []byte("key")
	env.AppData = []byte("cookie")
	env.CompanyID = 91
	env.TargetInfo.SetOSPFName("ar#0")
	env.TargetInfo.SetPluginID("com.hundsun.fbase.f2core")
	env.SendInfo.SetSvrName("client-1")
	env.SendInfo.ConnectID = 3
	return env
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}
	originalMsg := sampleEnvelope()

	data, err := jsonCodec.Encode(originalMsg)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decodedMsg message.Envelope
	if err := jsonCodec.Decode(data, &decodedMsg); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}
	if !originalMsg.Equal(&decodedMsg) {
		t.Errorf("envelope mismatch:\n got %+v\nwant %+v", decodedMsg, *originalMsg)
	}
	if decodedMsg.TargetInfo.PluginID() != "com.hundsun.fbase.f2core" {
		t.Errorf("plugin id lost: %q", decodedMsg.TargetInfo.PluginID())
	}
}

func TestBinaryCodec(t *testing.T) {
	binaryCodec := &BinaryCodec{}
	originalMsg := sampleEnvelope()

	data, err := binaryCodec.Encode(originalMsg)
	if err != nil {
		t.Fatalf("BinaryCodec Encode failed: %v", err)
	}
	want := fixedEnvelopeSize + len(originalMsg.ErrorInfo) + 3 + 3 + 6
	if len(data) != want {
		t.Fatalf("encoded size: got %d, want %d", len(data), want)
	}

	var decodedMsg message.Envelope
	if err := binaryCodec.Decode(data, &decodedMsg); err != nil {
		t.Fatalf("BinaryCodec Decode failed: %v", err)
	}
	if !originalMsg.Equal(&decodedMsg) {
		t.Errorf("envelope mismatch:\n got %+v\nwant %+v", decodedMsg, *originalMsg)
	}

	// 解码结果不能引用原始缓冲区
	data[len(data)-1] = 'X'
	if string(decodedMsg.AppData) != "cookie" {
		t.Errorf("AppData aliases the frame buffer: %q", decodedMsg.AppData)
	}
}

func TestBinaryCodecRejectsBadInput(t *testing.T) {
	c := &BinaryCodec{}
	data, err := c.Encode(sampleEnvelope())
	if err != nil {
		t.Fatal(err)
	}

	var env message.Envelope
	for _, n := range []int{0, 10, fixedEnvelopeSize - 1, len(data) - 1} {
		if err := c.Decode(data[:n], &env); !errors.Is(err, ErrShortBuffer) {
			t.Errorf("truncated at %d: expect ErrShortBuffer, got %v", n, err)
		}
	}
	if err := c.Decode(append(data, 0), &env); err == nil {
		t.Error("expect error for trailing bytes")
	}
	if _, err := c.Encode("not an envelope"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expect ErrUnsupported, got %v", err)
	}
}

func TestGetCodec(t *testing.T) {
	if GetCodec(CodecTypeJSON).Type() != CodecTypeJSON {
		t.Fatal("expect json codec")
	}
	if GetCodec(ParseCodecType("binary")).Type() != CodecTypeBinary {
		t.Fatal("expect binary codec")
	}
	if ParseCodecType("json") != CodecTypeJSON || ParseCodecType("") != CodecTypeBinary {
		t.Fatal("unexpected codec name mapping")
	}
}
