package nvx

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"
)

const (
	headerXSRF     = "CREST-XSRF-TOKEN"
	headerXSRFEcho = "X-CREST-XSRF-TOKEN"
)

// session is the authenticated state obtained from one login exchange.
// A session is never mutated; login replaces it and Invalidate drops it.
type session struct {
	cookie      string
	token       string
	credentials string
}

var cookieAttrPattern = regexp.MustCompile(`(?i);\s*(Secure|HttpOnly|Path=[^;]*)`)

// stripCookieAttributes removes the attributes the device sets on its
// session cookies so the value can be echoed back verbatim.
func stripCookieAttributes(c string) string {
	return strings.TrimSpace(cookieAttrPattern.ReplaceAllString(c, ""))
}

// sessionFromResponse builds a session from the login reply headers.
// It returns nil if the device did not hand out any cookie.
func sessionFromResponse(h http.Header, credentials string) *session {
	var parts []string
	token := h.Get(headerXSRF)
	for _, raw := range h.Values("Set-Cookie") {
		c := stripCookieAttributes(raw)
		if c == "" {
			continue
		}
		parts = append(parts, strings.TrimSuffix(c, ";"))
		if token == "" {
			if name, value, ok := strings.Cut(c, "="); ok && strings.EqualFold(name, headerXSRF) {
				token, _, _ = strings.Cut(value, ";")
			}
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &session{
		cookie:      strings.Join(parts, "; "),
		token:       token,
		credentials: credentials,
	}
}

func credentialsHash(login, password string) string {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return hex.EncodeToString(sum[:])
}

func (s *session) apply(req *http.Request) {
	req.Header.Set("Cookie", s.cookie)
	if s.token != "" {
		req.Header.Set(headerXSRFEcho, s.token)
	}
}
