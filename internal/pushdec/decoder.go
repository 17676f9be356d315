// Package pushdec turns opaque push payloads into typed signaling events.
//
// Payloads are compact JWS envelopes signed by the push gateway with the
// shared push secret. The decoder is a pure function over (payload, current
// token epoch): it never touches shared state and never blocks.
package pushdec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedPayload covers bad signatures, non-JWS payloads and
	// payloads missing required fields.
	ErrMalformedPayload = errors.New("pushdec: malformed payload")

	// ErrStalePayload marks a payload issued against a previously rotated
	// device token. It must be dropped without side effects.
	ErrStalePayload = errors.New("pushdec: payload issued for rotated token")
)

const (
	eventInvite = "invite"
	eventCancel = "cancel"
)

// NewInvite is an inbound call offer carried by a push.
type NewInvite struct {
	CallSid          string
	From             string
	To               string
	CustomParameters map[string]string
}

// Cancellation withdraws a previously pushed invite, keyed by call SID.
type Cancellation struct {
	CallSid string
}

// TokenRotated reports a device token rotation from the push transport.
type TokenRotated struct {
	Token []byte
}

// Message is one of NewInvite or Cancellation.
type Message interface{ pushMessage() }

func (NewInvite) pushMessage()    {}
func (Cancellation) pushMessage() {}

type claims struct {
	Event            string            `json:"ev"`
	CallSid          string            `json:"callSid"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	CustomParameters map[string]string `json:"custom,omitempty"`
	TokenEpoch       int64             `json:"tokenEpoch"`
	jwt.RegisteredClaims
}

// Decoder verifies and decodes push envelopes.
type Decoder struct {
	secret []byte
	parser *jwt.Parser
}

func New(pushSecret string) (*Decoder, error) {
	if pushSecret == "" {
		return nil, errors.New("pushdec: push secret is required")
	}
	return &Decoder{
		secret: []byte(pushSecret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuedAt(),
		),
	}, nil
}

// Decode validates a raw push payload and returns the typed message.
// currentEpoch is the epoch of the device token registration the process
// currently holds; payloads minted for an older epoch are stale.
func (d *Decoder) Decode(raw []byte, currentEpoch int64) (Message, error) {
	var c claims
	_, err := d.parser.ParseWithClaims(strings.TrimSpace(string(raw)), &c, func(t *jwt.Token) (any, error) {
		return d.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if c.TokenEpoch != currentEpoch {
		return nil, fmt.Errorf("%w: payload epoch %d, current %d", ErrStalePayload, c.TokenEpoch, currentEpoch)
	}

	switch c.Event {
	case eventInvite:
		if c.CallSid == "" || c.From == "" || c.To == "" {
			return nil, fmt.Errorf("%w: invite missing callSid/from/to", ErrMalformedPayload)
		}
		return NewInvite{
			CallSid:          c.CallSid,
			From:             c.From,
			To:               c.To,
			CustomParameters: c.CustomParameters,
		}, nil
	case eventCancel:
		if c.CallSid == "" {
			return nil, fmt.Errorf("%w: cancellation missing callSid", ErrMalformedPayload)
		}
		return Cancellation{CallSid: c.CallSid}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedPayload, c.Event)
	}
}

// DecodeTokenUpdate parses a device-token rotation delivered by the push
// transport. Rotations are not epoch-checked; they establish the new epoch.
func DecodeTokenUpdate(raw []byte) (TokenRotated, error) {
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return TokenRotated{}, fmt.Errorf("%w: empty token", ErrMalformedPayload)
	}
	return TokenRotated{Token: []byte(token)}, nil
}
