package ai

import "strings"

type ArtifactKind int

const (
	ArtifactAbsent ArtifactKind = iota
	ArtifactInline
	ArtifactRemote
)

const defaultMimeType = "image/png"

// Artifact is the canonical image descriptor extracted from a provider
// response. Exactly one variant applies per response.
type Artifact struct {
	Kind     ArtifactKind
	B64      string // inline only, data-URI header already stripped
	MimeType string // inline only
	URL      string // remote only
}

func InlineArtifact(b64, mimeType string) Artifact {
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return Artifact{Kind: ArtifactInline, B64: stripDataURI(b64), MimeType: mimeType}
}

func RemoteArtifact(url string) Artifact {
	return Artifact{Kind: ArtifactRemote, URL: url}
}

// Normalize extracts a single image artifact from a provider response.
// Formats are checked newest-first: structured content blocks, then plain
// string content, then the legacy images list. Missing fields are the
// normal case here, not an error.
func Normalize(resp *Response) Artifact {
	if resp == nil || len(resp.Choices) == 0 {
		return Artifact{Kind: ArtifactAbsent}
	}
	msg := resp.Choices[0].Message

	for _, block := range msg.Content.Blocks {
		if artifact, ok := fromBlock(block); ok {
			return artifact
		}
		if url, ok := firstHTTPToken(block.Text); ok {
			return RemoteArtifact(url)
		}
	}

	if url, ok := firstHTTPToken(msg.Content.Text); ok {
		return RemoteArtifact(url)
	}

	for _, block := range msg.Images {
		if artifact, ok := fromBlock(block); ok {
			return artifact
		}
	}

	return Artifact{Kind: ArtifactAbsent}
}

func fromBlock(block ContentBlock) (Artifact, bool) {
	b64 := block.B64JSON
	if b64 == "" {
		b64 = block.ImageBase64
	}
	if b64 != "" {
		return InlineArtifact(b64, block.MimeType), true
	}
	for _, candidate := range []string{block.URL, block.ImageURL.URL, block.URI} {
		if isHTTP(candidate) {
			return RemoteArtifact(candidate), true
		}
	}
	return Artifact{}, false
}

// stripDataURI drops a "data:image/png;base64," style header. Base64 text
// never contains a comma, so cutting at the first one is safe.
func stripDataURI(b64 string) string {
	if i := strings.IndexByte(b64, ','); i >= 0 {
		return b64[i+1:]
	}
	return b64
}

// firstHTTPToken finds the first http(s) link inside freeform text. Models
// tend to wrap links in markdown, so a token is trimmed of trailing
// punctuation after the scheme match.
func firstHTTPToken(text string) (string, bool) {
	for _, field := range strings.Fields(text) {
		i := strings.Index(field, "http://")
		if i < 0 {
			i = strings.Index(field, "https://")
		}
		if i < 0 {
			continue
		}
		token := strings.TrimRight(field[i:], ").,]")
		if isHTTP(token) {
			return token, true
		}
	}
	return "", false
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
