package hcf

import "encoding/json"

// Fingerprint uniquely identifies a crawl request. It is the routing key
// for slots and the key of state entries.
type Fingerprint string

// Request is a crawl request carried through the queue unmodified.
type Request struct {
	Fingerprint Fingerprint       `json:"fp"`
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Priority    int               `json:"p,omitempty"`
	Meta        map[string]any    `json:"meta,omitempty"`
}

// Validate returns an error if the request contains invalid fields.
func (r *Request) Validate() error {
	if r.Fingerprint == "" {
		return Errorf(EINVALID, "request fingerprint required")
	}
	return nil
}

// UnmarshalJSON decodes a request. Requests stored without a URL use their
// fingerprint as the URL.
func (r *Request) UnmarshalJSON(data []byte) error {
	type alias Request
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Request(a)
	if r.URL == "" {
		r.URL = string(r.Fingerprint)
	}
	return nil
}

// Batch is a group of requests written to and deleted from one slot as a unit.
type Batch struct {
	ID       string    `json:"id"`
	Slot     string    `json:"slot"`
	Requests []Request `json:"requests"`
}

// Requests concatenates the requests of the given batches preserving
// batch order and within-batch order.
func Requests(batches []*Batch) []Request {
	var n int
	for _, b := range batches {
		n += len(b.Requests)
	}
	out := make([]Request, 0, n)
	for _, b := range batches {
		out = append(out, b.Requests...)
	}
	return out
}
