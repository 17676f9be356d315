package pushdec

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "push-secret"

func signPayload(t *testing.T, secret string, c claims) []byte {
	t.Helper()
	if c.IssuedAt == nil {
		c.IssuedAt = jwt.NewNumericDate(time.Now())
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return []byte(s)
}

func TestDecode_Invite(t *testing.T) {
	d, err := New(testSecret)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	raw := signPayload(t, testSecret, claims{
		Event:            eventInvite,
		CallSid:          "CA1",
		From:             "+15550001111",
		To:               "+15550002222",
		CustomParameters: map[string]string{"department": "support"},
		TokenEpoch:       3,
	})

	msg, err := d.Decode(raw, 3)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	inv, ok := msg.(NewInvite)
	if !ok {
		t.Fatalf("expected NewInvite, got %T", msg)
	}
	if inv.CallSid != "CA1" || inv.From != "+15550001111" || inv.To != "+15550002222" {
		t.Fatalf("fields not mapped: %+v", inv)
	}
	if inv.CustomParameters["department"] != "support" {
		t.Fatalf("custom parameters not mapped")
	}
}

func TestDecode_Cancellation(t *testing.T) {
	d, _ := New(testSecret)

	raw := signPayload(t, testSecret, claims{Event: eventCancel, CallSid: "CA1", TokenEpoch: 0})
	msg, err := d.Decode(raw, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c, ok := msg.(Cancellation); !ok || c.CallSid != "CA1" {
		t.Fatalf("expected Cancellation{CA1}, got %#v", msg)
	}
}

func TestDecode_StaleEpochIsRejected(t *testing.T) {
	d, _ := New(testSecret)

	raw := signPayload(t, testSecret, claims{Event: eventInvite, CallSid: "CA1", From: "a", To: "b", TokenEpoch: 1})
	if _, err := d.Decode(raw, 2); !errors.Is(err, ErrStalePayload) {
		t.Fatalf("expected ErrStalePayload, got %v", err)
	}
}

func TestDecode_MalformedPayloads(t *testing.T) {
	d, _ := New(testSecret)

	cases := []struct {
		name string
		raw  []byte
	}{
		{"garbage", []byte("not-a-jws")},
		{"wrong secret", signPayload(t, "other-secret", claims{Event: eventInvite, CallSid: "CA1", From: "a", To: "b"})},
		{"unknown event", signPayload(t, testSecret, claims{Event: "ping"})},
		{"invite missing fields", signPayload(t, testSecret, claims{Event: eventInvite, CallSid: "CA1"})},
		{"cancel missing sid", signPayload(t, testSecret, claims{Event: eventCancel})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := d.Decode(tc.raw, 0); !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestDecodeTokenUpdate(t *testing.T) {
	rot, err := DecodeTokenUpdate([]byte(" device-token-1 \n"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(rot.Token) != "device-token-1" {
		t.Fatalf("token not trimmed: %q", rot.Token)
	}

	if _, err := DecodeTokenUpdate([]byte("  ")); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for empty token, got %v", err)
	}
}
