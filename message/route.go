package message

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/bytedance/sonic"
)

// Capacities of the RouteInfo name fields, excluding the terminating NUL.
const (
	IdentityNameLength    = 32
	IDLength              = 4
	IDStrLen              = IdentityNameLength + IDLength + 1
	PluginIDLength        = 256
	PluginNameLength      = PluginIDLength + IDLength + 1
	SvrNameLength         = 256
	SvrInstanceNameLength = SvrNameLength + IDLength + 1
)

// RouteInfoSize is the encoded size of a RouteInfo.
const RouteInfoSize = 2*(IDStrLen+1) + (SvrInstanceNameLength + 1) + (PluginNameLength + 1) + 4 + 4

// RouteInfo is a fixed-width routing address. Names longer than their field
// are truncated and every field keeps a trailing NUL.
type RouteInfo struct {
	ospfName  [IDStrLen + 1]byte
	nbrName   [IDStrLen + 1]byte
	svrName   [SvrInstanceNameLength + 1]byte
	pluginID  [PluginNameLength + 1]byte
	ConnectID int32
	MemberNo  int32
}

func (r *RouteInfo) SetOSPFName(s string) { putFixed(r.ospfName[:], s) }
func (r *RouteInfo) SetNbrName(s string)  { putFixed(r.nbrName[:], s) }
func (r *RouteInfo) SetSvrName(s string)  { putFixed(r.svrName[:], s) }
func (r *RouteInfo) SetPluginID(s string) { putFixed(r.pluginID[:], s) }

func (r *RouteInfo) OSPFName() string { return getFixed(r.ospfName[:]) }
func (r *RouteInfo) NbrName() string  { return getFixed(r.nbrName[:]) }
func (r *RouteInfo) SvrName() string  { return getFixed(r.svrName[:]) }
func (r *RouteInfo) PluginID() string { return getFixed(r.pluginID[:]) }

// IsZero reports whether no field is set.
func (r *RouteInfo) IsZero() bool { return *r == RouteInfo{} }

func putFixed(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	clear(dst[n:])
}

func getFixed(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

// MarshalBinary writes the fixed RouteInfoSize layout: the four name arrays
// followed by ConnectID and MemberNo in little-endian.
func (r *RouteInfo) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RouteInfoSize))
}

func (r *RouteInfo) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, r.ospfName[:]...)
	b = append(b, r.nbrName[:]...)
	b = append(b, r.svrName[:]...)
	b = append(b, r.pluginID[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(r.ConnectID))
	b = binary.LittleEndian.AppendUint32(b, uint32(r.MemberNo))
	return b, nil
}

func (r *RouteInfo) UnmarshalBinary(data []byte) error {
	if len(data) != RouteInfoSize {
		return errors.New("message: route info must be exactly RouteInfoSize bytes")
	}
	off := copy(r.ospfName[:], data)
	off += copy(r.nbrName[:], data[off:])
	off += copy(r.svrName[:], data[off:])
	off += copy(r.pluginID[:], data[off:])
	r.ConnectID = int32(binary.LittleEndian.Uint32(data[off:]))
	r.MemberNo = int32(binary.LittleEndian.Uint32(data[off+4:]))
	// keep the terminators even if the peer sent full arrays
	r.ospfName[len(r.ospfName)-1] = 0
	r.nbrName[len(r.nbrName)-1] = 0
	r.svrName[len(r.svrName)-1] = 0
	r.pluginID[len(r.pluginID)-1] = 0
	return nil
}

type routeInfoJSON struct {
	OSPFName  string `json:"ospf_name"`
	NbrName   string `json:"nbr_name"`
	SvrName   string `json:"svr_name"`
	PluginID  string `json:"plugin_id"`
	ConnectID int32  `json:"connect_id"`
	MemberNo  int32  `json:"member_no"`
}

func (r RouteInfo) MarshalJSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(routeInfoJSON{
		OSPFName:  r.OSPFName(),
		NbrName:   r.NbrName(),
		SvrName:   r.SvrName(),
		PluginID:  r.PluginID(),
		ConnectID: r.ConnectID,
		MemberNo:  r.MemberNo,
	})
}

func (r *RouteInfo) UnmarshalJSON(data []byte) error {
	var v routeInfoJSON
	if err := sonic.ConfigStd.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = RouteInfo{ConnectID: v.ConnectID, MemberNo: v.MemberNo}
	r.SetOSPFName(v.OSPFName)
	r.SetNbrName(v.NbrName)
	r.SetSvrName(v.SvrName)
	r.SetPluginID(v.PluginID)
	return nil
}
