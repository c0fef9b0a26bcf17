// Package magnet validates and inspects BitTorrent magnet links before
// they reach the torrent engine.
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Prefix is the scheme and exact-topic prefix every accepted magnet link
// must start with.
const Prefix = "magnet:?xt=urn:btih:"

// minLength is the shortest form a btih magnet link can take: the prefix
// plus a 32-character base32 info-hash, with a little slack removed.
const minLength = 50

// hashPattern accepts a 40-character hex info-hash or a 32-character
// base32 one.
var hashPattern = regexp.MustCompile(`xt=urn:btih:([a-fA-F0-9]{40}|[a-zA-Z2-7]{32})`)

// Validate reports whether s is a syntactically well-formed BitTorrent
// magnet link. A link that passes may still point at a dead or unseeded
// torrent; only the engine can tell.
func Validate(s string) bool {
	if s == "" {
		return false
	}
	if !strings.HasPrefix(s, Prefix) {
		return false
	}
	if len(s) < minLength {
		return false
	}
	return hashPattern.MatchString(s)
}

// InfoHash extracts the info-hash from a magnet link, normalized to
// lowercase hex. Base32 hashes are decoded and re-encoded as hex.
func InfoHash(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "magnet" {
		return "", fmt.Errorf("invalid magnet URI scheme")
	}
	values, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return "", err
	}

	for _, xt := range values["xt"] {
		if !strings.HasPrefix(strings.ToLower(xt), "urn:btih:") {
			continue
		}
		hash := strings.TrimSpace(xt[len("urn:btih:"):])
		if len(hash) == 0 {
			continue
		}
		if len(hash) == 40 {
			if _, err := hex.DecodeString(hash); err == nil {
				return strings.ToLower(hash), nil
			}
		}

		encoding := base32.StdEncoding.WithPadding(base32.NoPadding)
		base32Value := strings.TrimRight(strings.ToUpper(hash), "=")
		decoded, err := encoding.DecodeString(base32Value)
		if err != nil || len(decoded) != 20 {
			continue
		}
		return hex.EncodeToString(decoded), nil
	}

	return "", fmt.Errorf("btih magnet xt not present")
}
