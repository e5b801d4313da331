// Package mediacodec converts binary media payloads to and from the base64
// transport encodings used by JSON-based generation APIs.
package mediacodec

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeError reports malformed transport input.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mediacodec: %s: %v", e.Reason, e.Err)
	}
	return "mediacodec: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode returns the standard base64 encoding of data.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// EncodeDataURL wraps data in a data URL carrying the given mime type. An
// empty mime defaults to image/png, matching what the providers assume when
// none is reported.
func EncodeDataURL(data []byte, mime string) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + Encode(data)
}

// Decode accepts either a bare base64 string or a full data URL and returns
// the raw payload bytes.
func Decode(transport string) ([]byte, error) {
	data, _, err := DecodeDataURL(transport)
	return data, err
}

// DecodeDataURL decodes a base64 payload, returning the bytes and the mime
// type when the input was a data URL (empty otherwise).
func DecodeDataURL(transport string) ([]byte, string, error) {
	transport = strings.TrimSpace(transport)
	if transport == "" {
		return nil, "", &DecodeError{Reason: "empty payload"}
	}

	mime := ""
	if strings.HasPrefix(transport, "data:") {
		head, rest, ok := strings.Cut(transport[len("data:"):], ",")
		if !ok {
			return nil, "", &DecodeError{Reason: "data url missing comma separator"}
		}
		if !strings.HasSuffix(head, ";base64") {
			return nil, "", &DecodeError{Reason: "data url is not base64 encoded"}
		}
		mime = strings.TrimSuffix(head, ";base64")
		transport = rest
	}

	data, err := base64.StdEncoding.DecodeString(transport)
	if err != nil {
		return nil, "", &DecodeError{Reason: "invalid base64 payload", Err: err}
	}
	return data, mime, nil
}
