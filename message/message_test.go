package message

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestRouteInfoTruncation(t *testing.T) {
	var r RouteInfo

	// 恰好等于容量的名字原样保留
	exact := strings.Repeat("a", IDStrLen)
	r.SetOSPFName(exact)
	if r.OSPFName() != exact {
		t.Fatalf("expect name within capacity preserved, got %q", r.OSPFName())
	}

	// 超长的名字被截断，末尾保持 NUL
	long := strings.Repeat("b", IDStrLen+20)
	r.SetNbrName(long)
	if r.NbrName() != long[:IDStrLen] {
		t.Fatalf("expect %d bytes, got %d", IDStrLen, len(r.NbrName()))
	}
	if r.nbrName[len(r.nbrName)-1] != 0 {
		t.Fatal("expect trailing NUL")
	}

	r.SetSvrName(strings.Repeat("s", 400))
	if len(r.SvrName()) != SvrInstanceNameLength {
		t.Fatalf("expect svr name truncated to %d, got %d", SvrInstanceNameLength, len(r.SvrName()))
	}
	r.SetPluginID("com.hundsun.fbase.f2core")
	if r.PluginID() != "com.hundsun.fbase.f2core" {
		t.Fatalf("unexpected plugin id %q", r.PluginID())
	}

	// 覆盖写入较短的值，不残留旧字节
	r.SetNbrName("short")
	if r.NbrName() != "short" {
		t.Fatalf("expect short, got %q", r.NbrName())
	}
}

func TestRouteInfoBinary(t *testing.T) {
	var r RouteInfo
	r.SetOSPFName("ospf")
	r.SetSvrName("ar#1")
	r.ConnectID = 7
	r.MemberNo = -3

	data, err := r.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != RouteInfoSize {
		t.Fatalf("expect %d bytes, got %d", RouteInfoSize, len(data))
	}

	var got RouteInfo
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Fatalf("route info mismatch: %+v vs %+v", got, r)
	}
	if err := got.UnmarshalBinary(data[:10]); err == nil {
		t.Fatal("expect error on short input")
	}
}

func TestRouteInfoJSON(t *testing.T) {
	var r RouteInfo
	r.SetNbrName("nbr")
	r.MemberNo = 2

	data, err := sonic.ConfigStd.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"nbr_name":"nbr"`)) {
		t.Fatalf("expect names as strings, got %s", data)
	}
	var got RouteInfo
	if err := sonic.ConfigStd.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Fatalf("route info mismatch after JSON: %+v", got)
	}
}

func TestChangeReqToAnswer(t *testing.T) {
	req := NewRequest(331100)
	req.TargetInfo.SetSvrName("gateway")
	req.SendInfo.SetSvrName("client")
	req.Content = []byte{1, 2, 3}
	req.AppData = []byte("ctx")
	req.ErrorNo = 9

	ans := req.Clone()
	ans.ChangeReqToAnswer()

	if ans.PacketType != PacketAnswer {
		t.Fatalf("expect answer, got %s", ans.PacketType)
	}
	if ans.TargetInfo.SvrName() != "client" || ans.SendInfo.SvrName() != "gateway" {
		t.Fatal("expect routing swapped")
	}
	if ans.Content != nil || ans.ErrorNo != 0 {
		t.Fatal("expect content and status cleared")
	}
	if string(ans.AppData) != "ctx" {
		t.Fatalf("expect AppData kept, got %q", ans.AppData)
	}

	// Clone 是深拷贝，原请求不受影响
	if req.PacketType != PacketRequest || !bytes.Equal(req.Content, []byte{1, 2, 3}) {
		t.Fatal("clone shares state with the original")
	}
}

func TestBusinessError(t *testing.T) {
	e := NewRequest(1)
	if e.Failed() || e.BusinessError() != nil {
		t.Fatal("expect fresh envelope not failed")
	}
	e.ReturnCode = -1
	e.ErrorInfo = "账户不存在"
	err := e.BusinessError()
	be, ok := err.(*BusinessError)
	if !ok || be.ReturnCode != -1 || be.ErrorInfo != "账户不存在" {
		t.Fatalf("unexpected business error: %v", err)
	}

	e.Reset()
	if !e.Equal(&Envelope{}) {
		t.Fatal("expect Reset to clear everything")
	}
}
