// Package metadata carries the headers that travel with every quote message.
package metadata

// Reserved header keys.
const (
	// KeyCorrelationID ties a quote back to the request that produced it.
	KeyCorrelationID = "correlation_id"
	// KeyEventSchema names the payload type, e.g. "quote.Quote".
	KeyEventSchema = "event_message_schema"
	// KeyContentType is the MIME type of the payload encoding.
	KeyContentType = "content_type"
	// KeyRequestUUID is the watermill UUID of the originating request.
	KeyRequestUUID = "request_uuid"
	// KeyPartitionKey selects the broker partition on transports that have them.
	KeyPartitionKey = "partition_key"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned metadata map containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// CorrelationID returns the correlation header or "".
func (m Metadata) CorrelationID() string { return m[KeyCorrelationID] }

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
