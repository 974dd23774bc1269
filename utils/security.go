// twok/utils/security.go
package utils

import (
	"crypto/sha512"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// GetIPAddress returns the address of the connected peer. Forwarding headers
// are not read here; behind a trusted proxy the router rewrites RemoteAddr
// from them before any handler runs.
func GetIPAddress(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Fingerprint derives an identifier from IP, user agent and language.
// It is logged alongside posts; the ban and rate-limit gates key on IP alone.
func Fingerprint(r *http.Request) string {
	ip := GetIPAddress(r)
	input := ip + r.UserAgent() + r.Header.Get("Accept-Language")
	hash := sha512.Sum512([]byte(input))
	return hex.EncodeToString(hash[:])
}

// BearerToken returns the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
