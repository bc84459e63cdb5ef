package token

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testSecret, "HS256", 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	if _, err := NewCodec("", "HS256", time.Minute, time.Hour); err == nil {
		t.Errorf("empty secret accepted")
	}
	if _, err := NewCodec(testSecret, "HS1024", time.Minute, time.Hour); err == nil {
		t.Errorf("unknown algorithm accepted")
	}
	if _, err := NewCodec(testSecret, "RS256", time.Minute, time.Hour); err == nil {
		t.Errorf("asymmetric algorithm accepted")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	subject := "eae96b30-8c6f-46c5-a7f2-421bbd4bfd4d"

	tokenString, err := codec.IssueAccess(subject, map[string]any{"username": "alice"}, 0)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := codec.Decode(tokenString)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims["sub"] != subject {
		t.Errorf("sub = %v, want %q", claims["sub"], subject)
	}
	if claims["username"] != "alice" {
		t.Errorf("username = %v, want alice", claims["username"])
	}
	if kind, ok := claims[TypeClaim]; ok && kind == KindRefresh {
		t.Errorf("access token carries the refresh kind claim")
	}
}

func TestRefreshTokenCarriesKind(t *testing.T) {
	codec := newTestCodec(t)

	tokenString, err := codec.IssueRefresh("subject-id", nil, 0)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	claims, err := codec.Decode(tokenString)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims[TypeClaim] != KindRefresh {
		t.Errorf("type = %v, want %q", claims[TypeClaim], KindRefresh)
	}
}

func TestDecodeRejectsExpired(t *testing.T) {
	codec := newTestCodec(t)

	tokenString, err := codec.IssueAccess("subject-id", nil, -time.Minute)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.Decode(tokenString); err == nil {
		t.Errorf("expired token decoded")
	}

	// A nanosecond ttl pins expiry at issuance; claim timestamps
	// truncate to whole seconds, so a moment later the token is already
	// past its expiry.
	zeroTTL, err := codec.IssueAccess("subject-id", nil, time.Nanosecond)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := codec.Decode(zeroTTL); err == nil {
		t.Errorf("zero-ttl token decoded")
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	codec := newTestCodec(t)

	tokenString, err := codec.IssueAccess("subject-id", nil, 0)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token segments: %d", len(parts))
	}

	sig := []byte(parts[2])
	for i := range sig {
		flipped := make([]byte, len(sig))
		copy(flipped, sig)
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}
		tampered := parts[0] + "." + parts[1] + "." + string(flipped)
		if _, err := codec.Decode(tampered); err == nil {
			t.Fatalf("tampered signature (byte %d) decoded", i)
		}
	}
}

func TestDecodeRejectsForeignSecret(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewCodec("another-secret", "HS256", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	tokenString, err := other.IssueAccess("subject-id", nil, 0)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.Decode(tokenString); err == nil {
		t.Errorf("token signed with a different secret decoded")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	codec := newTestCodec(t)

	for _, tokenString := range []string{"", "not-a-jwt", "a.b", "a.b.c"} {
		if _, err := codec.Decode(tokenString); err == nil {
			t.Errorf("malformed token %q decoded", tokenString)
		}
	}
}
