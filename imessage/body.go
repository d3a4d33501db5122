package imessage

import (
	"strings"
	"unicode"
)

// BodyDecoder recovers plain text from a serialized attributedBody payload.
// Implementations are best-effort: return "" for anything that cannot be
// decoded, never an error.
type BodyDecoder interface {
	Decode(attributedBody []byte) string
}

// MarkerDecoder extracts text by locating the NSString/NSDictionary class
// markers inside the archived object graph. This is a pragmatic extraction,
// not a full typedstream parser, and the byte trimming around the extracted
// region is payload-version dependent.
type MarkerDecoder struct{}

// Decode implements BodyDecoder.
func (MarkerDecoder) Decode(attributedBody []byte) string {
	if len(attributedBody) == 0 {
		return ""
	}

	s := string(attributedBody)

	// The text sits between the NSString marker and the NSDictionary marker
	// of the attribute run that follows it.
	if idx := strings.Index(s, "NSNumber"); idx >= 0 {
		s = s[:idx]
	}
	parts := strings.SplitN(s, "NSString", 2)
	if len(parts) != 2 {
		return ""
	}
	s = parts[1]
	parts = strings.SplitN(s, "NSDictionary", 2)
	if len(parts) != 2 {
		return ""
	}
	s = parts[0]

	// Trim the archiver framing bytes around the string payload.
	runes := []rune(s)
	if len(runes) >= 6+12 {
		s = string(runes[6 : len(runes)-12])
	}
	return cleanBodyText(s)
}

// cleanBodyText strips non-printable and replacement characters left over
// from the binary payload.
func cleanBodyText(content string) string {
	if content == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if unicode.IsPrint(r) || r == ' ' || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	cleaned = strings.ReplaceAll(cleaned, "\uFFFC", "") // object replacement char
	cleaned = strings.ReplaceAll(cleaned, "\uFFFD", "") // replacement char
	cleaned = strings.ReplaceAll(cleaned, "\x01", "")

	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, "\x00")
	return cleaned
}
