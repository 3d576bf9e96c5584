// Package quote defines the response entity emitted by the processing stage
// and the codecs that move it across the outbound topic.
package quote

import "fmt"

// Quote is the priced answer to a single quote request. ID is the request
// payload copied verbatim and doubles as the correlation key.
type Quote struct {
	ID    string `json:"id"`
	Price int    `json:"price"`
}

// New returns a Quote for the given request identifier.
func New(id string, price int) Quote {
	return Quote{ID: id, Price: price}
}

func (q Quote) String() string {
	return fmt.Sprintf("Quote{id='%s', price=%d}", q.ID, q.Price)
}
