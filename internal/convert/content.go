package convert

import (
	"encoding/base64"
	"fmt"

	"lmbridge/internal/host"

	"github.com/tmc/langchaingo/llms"
)

// ImageFileContent is an image block that references a previously uploaded
// file instead of carrying a URL or inline data. The host API cannot resolve
// file ids, so converting one with only a FileID fails.
type ImageFileContent struct {
	llms.ImageURLContent
	FileID string
}

// ImageFilePart returns an image block referencing fileID.
func ImageFilePart(fileID string) ImageFileContent {
	return ImageFileContent{FileID: fileID}
}

// TextParts maps generic message content to host text parts. content is either
// a plain string or a slice of content blocks.
//
// The host has no image part, so images degrade to their URL, or to a base64
// data URL when the data is inline.
func TextParts(content any) ([]host.Part, error) {
	switch c := content.(type) {
	case string:
		return []host.Part{host.TextPart{Value: c}}, nil
	case []llms.ContentPart:
		out := make([]host.Part, 0, len(c))
		for _, part := range c {
			p, err := textPart(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownContentType, content)
	}
}

func textPart(part llms.ContentPart) (host.Part, error) {
	switch p := part.(type) {
	case llms.TextContent:
		return host.TextPart{Value: p.Text}, nil
	case llms.ImageURLContent:
		if p.URL == "" {
			return nil, fmt.Errorf("%w: image without url", ErrUnsupportedContentBlock)
		}
		return host.TextPart{Value: p.URL}, nil
	case llms.BinaryContent:
		if len(p.Data) == 0 || p.MIMEType == "" {
			return nil, fmt.Errorf("%w: inline data needs both data and mime type", ErrUnsupportedContentBlock)
		}
		return host.TextPart{Value: dataURL(p.MIMEType, p.Data)}, nil
	case ImageFileContent:
		if p.URL != "" {
			return host.TextPart{Value: p.URL}, nil
		}
		if p.FileID != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImageReference, p.FileID)
		}
		return nil, fmt.Errorf("%w: image without url, data or file id", ErrUnsupportedContentBlock)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedContentBlock, part)
	}
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
