package session

import "testing"

func TestCookieCodec_RoundTrip(t *testing.T) {
	codec := NewCookieCodec("secret", 3600)

	value, err := codec.Encode(DefaultCookieName, "sess-abc")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if value == "sess-abc" {
		t.Fatal("cookie value must not expose the raw session ID")
	}

	got, err := codec.Decode(DefaultCookieName, value)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "sess-abc" {
		t.Errorf("Decode = %q, want %q", got, "sess-abc")
	}
}

func TestCookieCodec_RejectsOtherCookieName(t *testing.T) {
	codec := NewCookieCodec("secret", 3600)

	value, err := codec.Encode("other_cookie", "sess-abc")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := codec.Decode(DefaultCookieName, value); err == nil {
		t.Error("expected error when cookie name differs")
	}
}

func TestCookieCodec_RejectsEmptySessionID(t *testing.T) {
	codec := NewCookieCodec("secret", 3600)

	value, err := codec.Encode(DefaultCookieName, "")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := codec.Decode(DefaultCookieName, value); err == nil {
		t.Error("expected error for empty session ID")
	}
}
