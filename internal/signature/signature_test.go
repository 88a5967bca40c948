package signature

import (
	"strings"
	"testing"
)

var secret = []byte("test-device-secret")

func TestVerify_RoundTrip(t *testing.T) {
	sig := Compute("sub_1", "2024-05-01T10:00:00Z", "device-7", secret)

	if !Verify("sub_1", "2024-05-01T10:00:00Z", "device-7", sig, secret) {
		t.Error("Verify() = false for a correctly signed payload")
	}

	// Deterministic: same inputs always produce the same MAC
	if sig != Compute("sub_1", "2024-05-01T10:00:00Z", "device-7", secret) {
		t.Error("Compute() is not deterministic for fixed inputs")
	}
}

func TestVerify_TamperedFields(t *testing.T) {
	sig := Compute("sub_1", "2024-05-01T10:00:00Z", "device-7", secret)

	tests := []struct {
		name       string
		id         string
		capturedAt string
		deviceID   string
	}{
		{"changed id", "sub_2", "2024-05-01T10:00:00Z", "device-7"},
		{"changed capturedAt", "sub_1", "2024-05-01T10:00:01Z", "device-7"},
		{"changed deviceId", "sub_1", "2024-05-01T10:00:00Z", "device-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verify(tt.id, tt.capturedAt, tt.deviceID, sig, secret) {
				t.Error("Verify() = true after tampering with a signed field")
			}
		})
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	sig := Compute("sub_1", "2024-05-01T10:00:00Z", "device-7", secret)

	if Verify("sub_1", "2024-05-01T10:00:00Z", "device-7", sig, []byte("other-secret")) {
		t.Error("Verify() = true for a signature computed with a different secret")
	}
}

func TestVerify_MalformedSignature(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"too short", "abcd"},
		{"not hex", strings.Repeat("z", 64)},
		{"truncated", Compute("sub_1", "2024-05-01T10:00:00Z", "device-7", secret)[:32]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Fails closed: no panic, just false.
			if Verify("sub_1", "2024-05-01T10:00:00Z", "device-7", tt.sig, secret) {
				t.Errorf("Verify() = true for malformed signature %q", tt.sig)
			}
		})
	}
}

func TestCompute_DefaultDeviceID(t *testing.T) {
	// An empty deviceId signs as the literal "unknown"
	if Compute("sub_1", "2024-05-01T10:00:00Z", "", secret) != Compute("sub_1", "2024-05-01T10:00:00Z", "unknown", secret) {
		t.Error("Compute() with empty deviceId should match the explicit \"unknown\" default")
	}
}
