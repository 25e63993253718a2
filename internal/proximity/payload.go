package proximity

import (
	"bytes"
	"fmt"
	"unicode"
	"unicode/utf8"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// PayloadKind discriminates the two payloads multiplexed over a peer link.
type PayloadKind int

const (
	// PayloadName carries a UTF-8 display name.
	PayloadName PayloadKind = iota + 1
	// PayloadToken carries a serialized ranging token.
	PayloadToken
)

// MaxNameLength bounds display names in bytes.
const MaxNameLength = 256

// tokenMagic prefixes serialized tokens. 0xFF never occurs in valid UTF-8,
// so a token blob can not be mistaken for a name.
//
//nolint:gochecknoglobals // Constant byte prefix.
var tokenMagic = []byte{0xFF, 'N', 'T', 0x01}

// Payload is a decoded inbound payload.
type Payload struct {
	Kind  PayloadKind
	Name  string
	Token domain.RangingToken
}

// EncodeName serializes a display name.
func EncodeName(name string) []byte {
	return []byte(name)
}

// EncodeToken serializes a ranging token as magic + protobuf BytesValue.
func EncodeToken(token domain.RangingToken) ([]byte, error) {
	if len(token) == 0 {
		return nil, fmt.Errorf("encode token: %w", ErrTokenDecode)
	}

	body, err := proto.Marshal(wrapperspb.Bytes(token))
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}

	return append(bytes.Clone(tokenMagic), body...), nil
}

// DecodePayload tries the payload as a name first, then as a token.
func DecodePayload(data []byte) (Payload, error) {
	if name, ok := decodeName(data); ok {
		return Payload{Kind: PayloadName, Name: name}, nil
	}

	token, err := decodeToken(data)
	if err != nil {
		return Payload{}, err
	}

	return Payload{Kind: PayloadToken, Token: token}, nil
}

// decodeName accepts non-empty, bounded UTF-8 without control characters.
func decodeName(data []byte) (string, bool) {
	if len(data) == 0 || len(data) > MaxNameLength || !utf8.Valid(data) {
		return "", false
	}

	name := string(data)
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", false
		}
	}

	return name, true
}

func decodeToken(data []byte) (domain.RangingToken, error) {
	if !bytes.HasPrefix(data, tokenMagic) {
		return nil, ErrMalformedPayload
	}

	var value wrapperspb.BytesValue
	if err := proto.Unmarshal(data[len(tokenMagic):], &value); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrMalformedPayload, ErrTokenDecode, err)
	}

	if len(value.GetValue()) == 0 {
		return nil, fmt.Errorf("%w: %w: empty token", ErrMalformedPayload, ErrTokenDecode)
	}

	return domain.RangingToken(value.GetValue()), nil
}
