package states

import (
	"encoding/json"

	"github.com/fwojciec/hcf"
)

// Codec converts state values to and from their stored representation.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONCodec stores values as JSON documents.
type JSONCodec[V any] struct{}

// Encode implements Codec.
func (JSONCodec[V]) Encode(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, hcf.Errorf(hcf.EINVALID, "encode state: %v", err)
	}
	return data, nil
}

// Decode implements Codec.
func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, hcf.Errorf(hcf.EINVALID, "decode state: %v", err)
	}
	return v, nil
}

// CrawlStateCodec stores hcf.CrawlState values by name.
type CrawlStateCodec struct{}

// Encode implements Codec.
func (CrawlStateCodec) Encode(s hcf.CrawlState) ([]byte, error) {
	return json.Marshal(s.String())
}

// Decode implements Codec. Numeric values are accepted as well.
func (CrawlStateCodec) Decode(data []byte) (hcf.CrawlState, error) {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return hcf.ParseCrawlState(name)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return hcf.NotCrawled, hcf.Errorf(hcf.EINVALID, "decode crawl state: %s", data)
	}
	return hcf.CrawlState(n), nil
}
