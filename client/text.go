package client

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"

	"t2rpc/message"
)

// EncodeGBK converts UTF-8 text to GBK.
func EncodeGBK(s string) ([]byte, error) {
	return simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
}

// DecodeGBK converts GBK bytes to UTF-8.
func DecodeGBK(b []byte) (string, error) {
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ErrorText returns the answer's error info as UTF-8. Gateways send it in
// either encoding; text that is not valid UTF-8 is taken to be GBK.
func ErrorText(env *message.Envelope) string {
	if env == nil {
		return ""
	}
	if utf8.ValidString(env.ErrorInfo) {
		return env.ErrorInfo
	}
	s, err := DecodeGBK([]byte(env.ErrorInfo))
	if err != nil {
		return env.ErrorInfo
	}
	return s
}
