package session

import (
	"fmt"
	"strconv"
)

// P3PHeader is the compact P3P compact-policy header emitted alongside a
// session Set-Cookie to satisfy ancient browsers that otherwise block
// third-party cookies (spec §4.5 "a P3P CP header is emitted alongside").
const P3PHeader = `CP="This site does not have a P3P policy."`

// CookieName builds the session cookie name from a configured template,
// appending a 4-hex-digit CRC16 of the request Host when dynamic is set
// (spec §4.5 "<template><xxxx>").
func CookieName(template, host string, dynamic bool) string {
	if !dynamic {
		return template
	}

	return fmt.Sprintf("%s%04x", template, crc16CCITT([]byte(host)))
}

// CookieAttributes renders the fixed attribute suffix for a session
// Set-Cookie header: "HttpOnly; Path=<path>; Version=1; Discard", with
// optional Secure/Domain inserted before Discard (spec §4.5 exact order,
// "Discard" last).
func CookieAttributes(path string, secure bool, domain string) string {
	if path == "" {
		path = "/"
	}

	out := "HttpOnly; Path=" + path + "; Version=1"

	if secure {
		out += "; Secure"
	}

	if domain != "" {
		out += `; Domain="` + domain + `"`
	}

	out += "; Discard"

	return out
}

// ExtractID resolves a session id from the URL query arg or the cookie,
// preferring the cookie once one has been received; the URL rewriter then
// stops emitting the query copy (spec §4.5 "Cookie vs URL"). fromCookie
// tells the caller whether to keep stripping the query arg going forward.
func ExtractID(cookieValue, queryValue string) (id ID, fromCookie, ok bool) {
	if cookieValue != "" {
		if v, err := strconv.ParseUint(cookieValue, 16, 64); err == nil {
			return ID(v), true, true
		}
	}

	if queryValue != "" {
		if v, err := strconv.ParseUint(queryValue, 16, 64); err == nil {
			return ID(v), false, true
		}
	}

	return 0, false, false
}

// FormatID renders an id the same way ExtractID parses it, for both the
// Set-Cookie value and any remaining URL copies.
func FormatID(id ID) string {
	return fmt.Sprintf("%016x", uint64(id))
}

// crc16CCITT is a minimal CRC-16/CCITT-FALSE implementation (poly 0x1021,
// init 0xFFFF). No corpus example wires a CRC16 dependency and the
// algorithm is a dozen lines, so it stays on the standard library rather
// than importing an ungrounded third-party checksum package.
func crc16CCITT(data []byte) uint16 {
	var crc uint16 = 0xFFFF

	for _, b := range data {
		crc ^= uint16(b) << 8

		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
