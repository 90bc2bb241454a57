package gmail

import (
	"encoding/base64"
	"strings"

	"mailsift/internal/models"
)

// DecodeParts walks a message part tree depth-first and collects the decoded
// text/plain and text/html bodies. When the same MIME type appears more than
// once, the part visited last wins; there is no concatenation. A nil payload
// or a part without body data contributes nothing. Never fails: undecodable
// data yields an empty string for that part.
func DecodeParts(payload *MessagePart) models.Body {
	var body models.Body

	var walk func(part *MessagePart)
	walk = func(part *MessagePart) {
		if part == nil {
			return
		}

		if part.Body != nil && part.Body.Data != "" {
			switch part.MimeType {
			case "text/plain":
				body.Text = decodeBase64URL(part.Body.Data)
			case "text/html":
				body.HTML = decodeBase64URL(part.Body.Data)
			}
		}

		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)

	return body
}

// decodeBase64URL decodes Gmail's url-safe base64: the alphabet is converted
// back to standard base64, padded to a multiple of 4, then decoded as UTF-8.
func decodeBase64URL(data string) string {
	data = strings.ReplaceAll(data, "-", "+")
	data = strings.ReplaceAll(data, "_", "/")
	for len(data)%4 != 0 {
		data += "="
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}
