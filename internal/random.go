// Package internal holds shared crypto-random primitives for the auth engine.
package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	seriesRawSize = 16
	tokenRawSize  = 32
	linkRawSize   = 32
)

func randomString(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewSeries returns a fresh persistent-login series identifier.
func NewSeries() (string, error) {
	return randomString(seriesRawSize)
}

// NewToken returns a fresh single-use persistent-login token.
func NewToken() (string, error) {
	return randomString(tokenRawSize)
}

// NewLink returns a fresh opaque user-link token.
func NewLink() (string, error) {
	return randomString(linkRawSize)
}
