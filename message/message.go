// Package message defines the business message exchanged between a client and
// the gateway.
//
// An Envelope is the unit of every request and answer. Its Content carries a
// record-encoded payload (see package record); the remaining fields are header
// and routing data. The codec layer serializes an Envelope and the protocol
// layer wraps it in a frame for transmission over TCP.
package message

import (
	"bytes"
	"fmt"
)

// PacketType tells a request from an answer.
type PacketType int32

const (
	PacketRequest PacketType = 0
	PacketAnswer  PacketType = 1
)

func (t PacketType) String() string {
	switch t {
	case PacketRequest:
		return "request"
	case PacketAnswer:
		return "answer"
	}
	return fmt.Sprintf("PacketType(%d)", int32(t))
}

// Envelope carries one business request or answer.
//
//   - On request:  FunctionNo selects the service, Content holds the packed arguments.
//   - On answer:   Content holds the packed result; ReturnCode/ErrorNo/ErrorInfo
//     report an application-level failure, which is data and not a transport error.
//
// AppData is opaque to the gateway and echoed back unchanged on the answer.
type Envelope struct {
	FunctionNo      int32      `json:"function_no"`
	PacketType      PacketType `json:"packet_type"`
	BranchNo        int32      `json:"branch_no"`
	SystemNo        int32      `json:"system_no"`
	SubSystemNo     int32      `json:"sub_system_no"`
	SenderID        int32      `json:"sender_id"`
	PacketID        int32      `json:"packet_id"`
	TargetInfo      RouteInfo  `json:"target_info"`
	SendInfo        RouteInfo  `json:"send_info"`
	ErrorNo         int32      `json:"error_no"`
	ErrorInfo       string     `json:"error_info,omitempty"`
	ReturnCode      int32      `json:"return_code"`
	Content         []byte     `json:"content,omitempty"`
	IssueType       int32      `json:"issue_type"`
	SequenceNo      int32      `json:"sequence_no"`
	KeyInfo         []byte     `json:"key_info,omitempty"`
	AppData         []byte     `json:"app_data,omitempty"`
	CompanyID       int32      `json:"company_id"`
	SenderCompanyID int32      `json:"sender_company_id"`
	InternalLicense int32      `json:"internal_license"`
	AppReserved     []byte     `json:"app_reserved,omitempty"`
}

// NewRequest returns a request envelope for the given function number.
func NewRequest(functionNo int32) *Envelope {
	return &Envelope{FunctionNo: functionNo, PacketType: PacketRequest}
}

// Reset clears every field.
func (e *Envelope) Reset() { *e = Envelope{} }

// Clone returns a deep copy.
func (e *Envelope) Clone() *Envelope {
	c := *e
	c.Content = cloneBytes(e.Content)
	c.KeyInfo = cloneBytes(e.KeyInfo)
	c.AppData = cloneBytes(e.AppData)
	c.AppReserved = cloneBytes(e.AppReserved)
	return &c
}

// ChangeReqToAnswer turns a received request into its answer in place: the
// routing descriptors swap, the content and status fields are cleared and
// AppData is kept for the caller.
func (e *Envelope) ChangeReqToAnswer() {
	e.PacketType = PacketAnswer
	e.TargetInfo, e.SendInfo = e.SendInfo, e.TargetInfo
	e.Content = nil
	e.ErrorNo = 0
	e.ErrorInfo = ""
	e.ReturnCode = 0
}

// Failed reports whether the answer carries an application-level failure.
func (e *Envelope) Failed() bool {
	return e.ReturnCode != 0 || e.ErrorNo != 0
}

// BusinessError returns the in-band failure as an error value, or nil.
func (e *Envelope) BusinessError() error {
	if !e.Failed() {
		return nil
	}
	return &BusinessError{FunctionNo: e.FunctionNo, ReturnCode: e.ReturnCode, ErrorNo: e.ErrorNo, ErrorInfo: e.ErrorInfo}
}

// Equal reports whether two envelopes carry the same values.
func (e *Envelope) Equal(o *Envelope) bool {
	return e.FunctionNo == o.FunctionNo && e.PacketType == o.PacketType &&
		e.BranchNo == o.BranchNo && e.SystemNo == o.SystemNo && e.SubSystemNo == o.SubSystemNo &&
		e.SenderID == o.SenderID && e.PacketID == o.PacketID &&
		e.TargetInfo == o.TargetInfo && e.SendInfo == o.SendInfo &&
		e.ErrorNo == o.ErrorNo && e.ErrorInfo == o.ErrorInfo && e.ReturnCode == o.ReturnCode &&
		e.IssueType == o.IssueType && e.SequenceNo == o.SequenceNo &&
		e.CompanyID == o.CompanyID && e.SenderCompanyID == o.SenderCompanyID &&
		e.InternalLicense == o.InternalLicense &&
		bytes.Equal(e.Content, o.Content) && bytes.Equal(e.KeyInfo, o.KeyInfo) &&
		bytes.Equal(e.AppData, o.AppData) && bytes.Equal(e.AppReserved, o.AppReserved)
}

// BusinessError is an answer whose return code or error number is non-zero.
type BusinessError struct {
	FunctionNo int32
	ReturnCode int32
	ErrorNo    int32
	ErrorInfo  string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("function %d failed: return code %d, error %d: %s", e.FunctionNo, e.ReturnCode, e.ErrorNo, e.ErrorInfo)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
