package sample

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// PayloadPrefix tags the cached payload format: base64 of gzipped compact JSON.
const PayloadPrefix = "JS1:"

// Payloads this short cannot hold any data, the scheduler field may hold such junk.
const minPayloadLength = 10

// Fields are ordered by JSON name so that the indented form has sorted keys.

type Payload struct {
	GPUs      int   `json:"gpus"`
	Nodes     Store `json:"nodes"`
	TotalTime int64 `json:"total_time"`
}

// IsPayload is true if s looks like a cached payload worth decoding.

func IsPayload(s string) bool {
	return strings.HasPrefix(s, PayloadPrefix) && len(s) > minPayloadLength
}

// DecodePayload decodes a "JS1:..." string.

func DecodePayload(s string) (*Payload, error) {
	if !IsPayload(s) {
		return nil, errors.New("Not a JS1 payload")
	}
	compressed, err := base64.StdEncoding.DecodeString(s[len(PayloadPrefix):])
	if err != nil {
		return nil, fmt.Errorf("Bad base64 in payload\n%w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("Bad gzip data in payload\n%w", err)
	}
	defer zr.Close()
	text, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("Bad gzip data in payload\n%w", err)
	}
	p := new(Payload)
	if err := json.Unmarshal(text, p); err != nil {
		return nil, fmt.Errorf("Bad JSON in payload\n%w", err)
	}
	if p.Nodes == nil {
		p.Nodes = make(Store)
	}
	return p, nil
}

// JSON is the pretty form (four-space indent) or, if compact, the form that is compressed.

func (p *Payload) JSON(compact bool) ([]byte, error) {
	q := *p
	if q.Nodes == nil {
		q.Nodes = make(Store)
	}
	if compact {
		return json.Marshal(&q)
	}
	return json.MarshalIndent(&q, "", "    ")
}

// Encode returns base64(gzip(compact JSON)), without the prefix.  This is what is stored in the
// scheduler by the job epilog, which adds the prefix itself.

func (p *Payload) Encode() (string, error) {
	text, err := p.JSON(true)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(text); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
