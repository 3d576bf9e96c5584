package quote

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	jsoncodec "github.com/drblury/quoteflow/internal/runtime/jsoncodec"
)

// ErrMalformedPayload is returned by every Codec when the bytes cannot be
// turned back into a Quote. It is never retried.
var ErrMalformedPayload = errors.New("quoteflow: malformed quote payload")

const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"

	CodecJSON     = "json"
	CodecProtobuf = "protobuf"
)

// Codec maps a Quote to and from its wire representation.
type Codec interface {
	Name() string
	ContentType() string
	Encode(q Quote) ([]byte, error)
	Decode(data []byte) (Quote, error)
}

// CodecByName returns the codec registered under name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecProtobuf, "proto":
		return ProtoWireCodec{}, nil
	default:
		return nil, fmt.Errorf("quoteflow: unknown quote codec %q", name)
	}
}

// CodecForContentType picks the codec that wrote a payload tagged with
// contentType, falling back to fallback when the type is empty or unknown.
func CodecForContentType(contentType string, fallback Codec) Codec {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case ContentTypeJSON:
		return JSONCodec{}
	case ContentTypeProtobuf:
		return ProtoWireCodec{}
	}
	if fallback == nil {
		return JSONCodec{}
	}
	return fallback
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// JSONCodec writes quotes as {"id":"...","price":N}, the format produced by
// the original Jackson serializer.
type JSONCodec struct{}

// jsonQuote keeps track of which fields were present on the wire.
type jsonQuote struct {
	ID    *string `json:"id"`
	Price *int    `json:"price"`
}

func (JSONCodec) Name() string        { return CodecJSON }
func (JSONCodec) ContentType() string { return ContentTypeJSON }

func (JSONCodec) Encode(q Quote) ([]byte, error) {
	return jsoncodec.Marshal(q)
}

func (JSONCodec) Decode(data []byte) (Quote, error) {
	if len(data) == 0 {
		return Quote{}, malformed("empty payload")
	}

	var wire jsonQuote
	if err := jsoncodec.Unmarshal(data, &wire); err != nil {
		return Quote{}, malformed("%v", err)
	}
	if wire.ID == nil {
		return Quote{}, malformed("missing field id")
	}
	if wire.Price == nil {
		return Quote{}, malformed("missing field price")
	}

	q := Quote{}
	q.ID = *wire.ID
	q.Price = *wire.Price
	return q, nil
}

// Field numbers used by ProtoWireCodec. They match a message declared as
// `message Quote { string id = 1; sint64 price = 2; }`.
const (
	fieldID    protowire.Number = 1
	fieldPrice protowire.Number = 2
)

// ProtoWireCodec writes quotes in the protobuf tagged-field encoding without
// requiring generated code.
type ProtoWireCodec struct{}

func (ProtoWireCodec) Name() string        { return CodecProtobuf }
func (ProtoWireCodec) ContentType() string { return ContentTypeProtobuf }

func (ProtoWireCodec) Encode(q Quote) ([]byte, error) {
	buf := make([]byte, 0, len(q.ID)+16)
	buf = protowire.AppendTag(buf, fieldID, protowire.BytesType)
	buf = protowire.AppendString(buf, q.ID)
	buf = protowire.AppendTag(buf, fieldPrice, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(q.Price)))
	return buf, nil
}

func (ProtoWireCodec) Decode(data []byte) (Quote, error) {
	if len(data) == 0 {
		return Quote{}, malformed("empty payload")
	}

	q := Quote{}
	var seenID, seenPrice bool
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Quote{}, malformed("tag: %v", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Quote{}, malformed("id: %v", protowire.ParseError(n))
			}
			q.ID = v
			seenID = true
			data = data[n:]
		case num == fieldPrice && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Quote{}, malformed("price: %v", protowire.ParseError(n))
			}
			q.Price = int(protowire.DecodeZigZag(v))
			seenPrice = true
			data = data[n:]
		case num == fieldID || num == fieldPrice:
			return Quote{}, malformed("field %d has wire type %d", num, typ)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Quote{}, malformed("field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !seenID {
		return Quote{}, malformed("missing field id")
	}
	if !seenPrice {
		return Quote{}, malformed("missing field price")
	}
	return q, nil
}
