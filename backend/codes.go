package backend

import "fmt"

// Library result codes. Send handles are positive; everything below zero is
// one of these.
const (
	CodeOK               int32 = 0
	CodeNotCreated       int32 = -1
	CodeNoServer         int32 = -2
	CodeConnectFailed    int32 = -3
	CodeConnectTimeout   int32 = -4
	CodeClosed           int32 = -5
	CodeSendFailed       int32 = -6
	CodeInvalidMessage   int32 = -7
	CodeNotConnected     int32 = -8
	CodeEncodeFailed     int32 = -9
	CodeAlreadyCreated   int32 = -10
	CodeAlreadyConnected int32 = -11
	CodeSyncUnsupported  int32 = -12
)

var codeText = map[int32]string{
	CodeOK:               "success",
	CodeNotCreated:       "connection not created, call Create first",
	CodeNoServer:         "no server address configured",
	CodeConnectFailed:    "failed to connect to server",
	CodeConnectTimeout:   "connect timed out",
	CodeClosed:           "connection closed",
	CodeSendFailed:       "failed to send message",
	CodeInvalidMessage:   "invalid message",
	CodeNotConnected:     "not connected",
	CodeEncodeFailed:     "failed to encode message",
	CodeAlreadyCreated:   "connection already created",
	CodeAlreadyConnected: "connection already connected",
	CodeSyncUnsupported:  "synchronous send not supported, use async mode",
}

// CodeText returns the description of a library result code.
func CodeText(code int32) string {
	if s, ok := codeText[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown error %d", code)
}
