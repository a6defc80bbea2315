package client

import (
	"context"

	"golang.org/x/text/encoding/simplifiedchinese"

	"t2rpc/message"
	"t2rpc/record"
)

// Header selects the function a Call invokes. Zero fields are left unset.
type Header struct {
	FunctionNo  int32
	SystemNo    int32
	BranchNo    int32
	SubSystemNo int32
	CompanyID   int32
}

// Call packs a JSON object or array into a request for h.FunctionNo, sends it
// and waits for the answer. See record.PackJSON for the mapping; strings are
// stored as GBK raw fields unless WithGBK(false) was given.
//
// The answer's Content is a packed record; open it with record.Open.
func (c *Client) Call(ctx context.Context, h Header, body []byte) (*message.Envelope, error) {
	var opt record.JSONOptions
	if c.opts.gbk {
		opt.TextEncoder = simplifiedchinese.GBK.NewEncoder()
		opt.StringsAsRaw = true
	}
	p, err := record.PackJSON(body, opt)
	if err != nil {
		return nil, err
	}

	req := message.NewRequest(h.FunctionNo)
	req.SystemNo = h.SystemNo
	req.BranchNo = h.BranchNo
	req.SubSystemNo = h.SubSystemNo
	req.CompanyID = h.CompanyID
	req.Content = p.Bytes()
	return c.SendAndWait(ctx, req, 0)
}
