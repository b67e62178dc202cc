// Package security holds helpers for handling untrusted input: URLs from
// pages and users, and identifiers that end up in file names.
package security

import (
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// secretParams are query parameter name fragments whose values are hidden
// in logs. Ad click URLs routinely carry session and auth tokens.
var secretParams = []string{
	"pass",
	"pwd",
	"secret",
	"token",
	"key",
	"auth",
	"bearer",
	"credential",
	"session",
	"sid",
	"private",
	"signature",
	"sig",
}

// RedactURL returns rawURL with user info and secret-looking query values
// replaced. Unparseable input is replaced entirely.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User != nil {
		parsed.User = url.User(redacted)
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for name := range q {
			if isSecretParam(name) {
				q[name] = []string{redacted}
			}
		}
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

func isSecretParam(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range secretParams {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// RedactProxyURL hides the password of a proxy URL, keeping the username.
func RedactProxyURL(proxyURL string) string {
	if proxyURL == "" {
		return ""
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-proxy-url]"
	}
	if parsed.User != nil {
		if _, ok := parsed.User.Password(); ok {
			parsed.User = url.UserPassword(parsed.User.Username(), redacted)
		}
	}
	return parsed.String()
}
