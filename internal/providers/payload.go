package providers

import (
	"encoding/json"
	"fmt"
	"io"

	jmes "github.com/jmespath/go-jmespath"
)

// Payload is a decoded provider response. Field access goes through JMESPath
// so nested envelopes (Douyin's "data", Alipay's "*_response") read the same
// as flat ones.
type Payload map[string]any

// DecodePayload decodes a JSON body into a Payload.
func DecodePayload(r io.Reader) (Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// Str evaluates a JMESPath expression and returns the string result, or ""
// when the path is absent or not a string.
func (p Payload) Str(path string) string {
	v, err := jmes.Search(path, map[string]any(p))
	if err != nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		// ids sometimes arrive as numbers; render without exponent
		return trimFloat(s)
	}
	return ""
}

// Int evaluates a JMESPath expression as an integer, 0 when absent.
func (p Payload) Int(path string) int64 {
	v, err := jmes.Search(path, map[string]any(p))
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

// Has reports whether the path resolves to a non-nil value.
func (p Payload) Has(path string) bool {
	v, err := jmes.Search(path, map[string]any(p))
	return err == nil && v != nil
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.0f", f)
	if float64(int64(f)) != f {
		s = fmt.Sprintf("%v", f)
	}
	return s
}
