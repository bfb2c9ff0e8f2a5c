package httpsig

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// HeaderRequestTarget is the synthetic pseudo-header covering the method,
// path and query of the request.
const HeaderRequestTarget = "(request-target)"

// SignatureHeader holds the parsed components of a Signature header.
type SignatureHeader struct {
	KeyID     string
	Algorithm Algorithm
	Headers   []string
	Signature []byte
}

// Covers reports whether name is part of the signed header list.
func (s SignatureHeader) Covers(name string) bool {
	for _, h := range s.Headers {
		if strings.EqualFold(h, name) {
			return true
		}
	}

	return false
}

// String serializes the header as
// keyId="...",algorithm="...",headers="...",signature="...".
func (s SignatureHeader) String() string {
	return fmt.Sprintf(`keyId=%s,algorithm=%s,headers=%s,signature=%s`,
		quote(s.KeyID),
		quote(s.Algorithm.String()),
		quote(strings.Join(s.Headers, " ")),
		quote(base64.StdEncoding.EncodeToString(s.Signature)),
	)
}

// ParseSignatureHeader parses a Signature header value. Unknown parameters
// are ignored. It returns ErrSignatureNotFound when the headers or
// signature parameters are missing and ErrMalformedHeader when the
// signature is not valid base64.
func ParseSignatureHeader(value string) (SignatureHeader, error) {
	var (
		sh                   SignatureHeader
		haveHeaders, haveSig bool
		encoded              string
	)

	for _, part := range splitQuoteAware(value, ',') {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}

		val = unquote(strings.TrimSpace(val))

		switch strings.TrimSpace(key) {
		case "keyId":
			sh.KeyID = val

		case "algorithm":
			sh.Algorithm = Algorithm(val)

		case "headers":
			sh.Headers = strings.Fields(val)
			haveHeaders = true

		case "signature":
			encoded = val
			haveSig = true
		}
	}

	if !haveHeaders || !haveSig {
		return sh, ErrSignatureNotFound
	}

	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return sh, fmt.Errorf("%w: invalid base64 in signature", ErrMalformedHeader)
	}

	sh.Signature = sig

	return sh, nil
}

// signingString joins "name: value" lines for each header in order. A
// header missing from the request contributes an empty value.
func signingString(r *http.Request, headers []string) string {
	lines := make([]string, 0, len(headers))

	for _, name := range headers {
		name = strings.ToLower(name)
		lines = append(lines, name+": "+headerValue(r, name))
	}

	return strings.Join(lines, "\n")
}

// headerValue returns the value signed for a header name.
//
// The "host" header is special-cased because net/http stores it in
// Request.Host rather than in the header map.
func headerValue(r *http.Request, name string) string {
	switch name {
	case HeaderRequestTarget:
		return requestTarget(r)

	case "host":
		if v := r.Header.Get("Host"); v != "" {
			return v
		}

		if r.Host != "" {
			return r.Host
		}

		if r.URL != nil {
			return r.URL.Host
		}

		return ""

	default:
		return r.Header.Get(name)
	}
}

// requestTarget returns "<lowercased-method> <path>[?<query>]".
func requestTarget(r *http.Request) string {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	return strings.ToLower(r.Method) + " " + path
}

// splitQuoteAware splits s on delim while respecting "..." quoted regions.
// Backslash-escaped quotes (\") inside quoted strings are handled. Each
// resulting part is trimmed of whitespace and empty parts are skipped.
func splitQuoteAware(s string, delim byte) []string {
	var result []string
	var part strings.Builder
	inQuote := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inQuote {
			if ch == '\\' && i+1 < len(s) {
				part.WriteByte(ch)
				i++
				part.WriteByte(s[i])
				continue
			}

			if ch == '"' {
				inQuote = false
			}

			part.WriteByte(ch)
			continue
		}

		if ch == '"' {
			inQuote = true
			part.WriteByte(ch)
			continue
		}

		if ch == delim {
			if p := strings.TrimSpace(part.String()); p != "" {
				result = append(result, p)
			}

			part.Reset()
			continue
		}

		part.WriteByte(ch)
	}

	if p := strings.TrimSpace(part.String()); p != "" {
		result = append(result, p)
	}

	return result
}

// quote wraps s in double quotes, escaping backslash and double-quote.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\\' || ch == '"' {
			b.WriteByte('\\')
		}

		b.WriteByte(ch)
	}

	b.WriteByte('"')

	return b.String()
}

// unquote removes surrounding double quotes and unescapes \\ and \".
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			b.WriteByte(s[i])

			continue
		}

		b.WriteByte(s[i])
	}

	return b.String()
}
