package transport

import (
	"bytes"
	"fmt"

	"github.com/dreamware/kvbroker/internal/literal"
)

// ErrFrameTooLarge is returned by PutFrame when the encoded value,
// including its trailing NUL, exceeds FrameSize.
var ErrFrameTooLarge = fmt.Errorf("transport: encoded frame exceeds %d bytes", FrameSize)

// ErrFrameCorrupt is returned by GetFrame when a data frame has no NUL
// terminator within FrameSize bytes — it was never validly written, or
// the region was corrupted.
var ErrFrameCorrupt = fmt.Errorf("transport: frame missing NUL terminator")

// PutFrame encodes v as a textual literal and writes it, NUL-terminated,
// into slot index's data frame within region.
func PutFrame(region []byte, index int, v any) error {
	raw, err := literal.Encode(v)
	if err != nil {
		return err
	}
	raw = append(raw, 0)
	if len(raw) > FrameSize {
		return ErrFrameTooLarge
	}

	seek := SeekData(index)
	copy(region[seek:seek+FrameSize], raw)
	return nil
}

// GetFrame reads and decodes slot index's data frame within region.
func GetFrame(region []byte, index int) (any, error) {
	seek := SeekData(index)
	chunk := region[seek : seek+FrameSize]

	n := bytes.IndexByte(chunk, 0)
	if n < 0 {
		return nil, ErrFrameCorrupt
	}
	return literal.Decode(chunk[:n])
}

// Request is the decoded shape of a request frame: every method name
// plus whichever of Key/Val/Prefix/Reverse/Seek it needs.
type Request struct {
	Method  string
	Key     any
	Val     any
	Prefix  string
	Reverse bool
	Seek    any
}

// Response is the decoded shape of a response frame: exactly one of
// Result or Error is meaningful, mirroring the {"result": ...} /
// {"error": ...} dict shapes the maintainer writes.
type Response struct {
	Result   any
	HasError bool
	Error    string
}

// PutRequest encodes and writes req into slot index.
func PutRequest(region []byte, index int, req Request) error {
	return PutFrame(region, index, requestToMap(req))
}

// GetRequest reads and decodes slot index's frame as a Request.
func GetRequest(region []byte, index int) (Request, error) {
	v, err := GetFrame(region, index)
	if err != nil {
		return Request{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Request{}, fmt.Errorf("transport: malformed request frame: %#v", v)
	}
	return requestFromMap(m), nil
}

// PutResponse encodes and writes resp into slot index.
func PutResponse(region []byte, index int, resp Response) error {
	if resp.HasError {
		return PutFrame(region, index, map[string]any{"error": resp.Error})
	}
	return PutFrame(region, index, map[string]any{"result": resp.Result})
}

// GetResponse reads and decodes slot index's frame as a Response.
func GetResponse(region []byte, index int) (Response, error) {
	v, err := GetFrame(region, index)
	if err != nil {
		return Response{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Response{}, fmt.Errorf("transport: malformed response frame: %#v", v)
	}
	if errMsg, ok := m["error"]; ok {
		s, _ := errMsg.(string)
		return Response{HasError: true, Error: s}, nil
	}
	return Response{Result: m["result"]}, nil
}

func requestToMap(req Request) map[string]any {
	m := map[string]any{"method": req.Method}
	if req.Key != nil {
		m["key"] = req.Key
	}
	if req.Val != nil {
		m["val"] = req.Val
	}
	if req.Prefix != "" {
		m["prefix"] = req.Prefix
	}
	if req.Reverse {
		m["reverse"] = req.Reverse
	}
	if req.Seek != nil {
		m["seek"] = req.Seek
	}
	return m
}

func requestFromMap(m map[string]any) Request {
	req := Request{}
	if s, ok := m["method"].(string); ok {
		req.Method = s
	}
	req.Key = m["key"]
	req.Val = m["val"]
	if s, ok := m["prefix"].(string); ok {
		req.Prefix = s
	}
	if b, ok := m["reverse"].(bool); ok {
		req.Reverse = b
	}
	req.Seek = m["seek"]
	return req
}
