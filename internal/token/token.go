// Package token signs the identifiers embedded in impression and click
// URLs so event callbacks cannot be forged or replayed indefinitely.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// nowFn allows tests to control the clock.
var nowFn = time.Now

// Claims are the values carried by a signed event token.
type Claims struct {
	RequestID   string
	CampaignID  int
	CreativeID  int
	PlacementID string
	ViewerID    string
}

// payload structure for encoding/decoding
type payload struct {
	ReqID       string `json:"r"`
	CampaignID  int    `json:"c"`
	CreativeID  int    `json:"cr"`
	PlacementID string `json:"pl"`
	ViewerID    string `json:"v,omitempty"`
	TS          int64  `json:"t"`
}

// Generate creates a signed token for the given claims.
func Generate(c Claims, secret []byte) (string, error) {
	pl := payload{
		ReqID:       c.RequestID,
		CampaignID:  c.CampaignID,
		CreativeID:  c.CreativeID,
		PlacementID: c.PlacementID,
		ViewerID:    c.ViewerID,
		TS:          nowFn().Unix(),
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token integrity and expiry and returns its claims.
// A ttl of zero disables the expiry check.
func Verify(token string, secret []byte, ttl time.Duration) (Claims, error) {
	var out Claims
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return out, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return out, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return out, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return out, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return out, ErrInvalid
	}
	if ttl > 0 && nowFn().Sub(time.Unix(pl.TS, 0)) > ttl {
		return out, ErrExpired
	}
	out.RequestID = pl.ReqID
	out.CampaignID = pl.CampaignID
	out.CreativeID = pl.CreativeID
	out.PlacementID = pl.PlacementID
	out.ViewerID = pl.ViewerID
	return out, nil
}
