package convert

import "errors"

// Sentinel errors for message and content conversion. Callers should use errors.Is.
var (
	ErrUnsupportedMessageType    = errors.New("convert: unsupported message type")
	ErrUnsupportedContentBlock   = errors.New("convert: message part type not supported")
	ErrUnsupportedImageReference = errors.New("convert: sending image via file id is not supported")
	ErrUnknownContentType        = errors.New("convert: unknown message content type")
	ErrMalformedToolArguments    = errors.New("convert: tool call arguments are not a JSON object")
	ErrUnencodableToolArguments  = errors.New("convert: tool call arguments cannot be encoded as JSON")
)
