package token

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		credential, err := Generate()
		if err != nil {
			t.Fatalf("generating credential: %v", err)
		}
		if len(credential) != 32 {
			t.Errorf("expected 32 encoded characters, got %d", len(credential))
		}
		if strings.ContainsAny(credential, "+/=") {
			t.Errorf("credential %q is not URL safe", credential)
		}
		if seen[credential] {
			t.Fatalf("credential %q generated twice", credential)
		}
		seen[credential] = true
	}
}

func TestIssue(t *testing.T) {
	credential, digest, err := Issue()
	if err != nil {
		t.Fatalf("issuing credential: %v", err)
	}
	if digest != Digest(credential) {
		t.Errorf("digest does not match credential")
	}
	if credential == digest {
		t.Errorf("digest equals plaintext credential")
	}
}

func TestVerify(t *testing.T) {
	credential, digest, err := Issue()
	if err != nil {
		t.Fatalf("issuing credential: %v", err)
	}

	if !Verify(credential, digest) {
		t.Errorf("expected matching credential to verify")
	}
	if Verify("not-the-credential", digest) {
		t.Errorf("expected mismatched credential to fail")
	}
	if Verify("", digest) {
		t.Errorf("expected empty credential to fail")
	}
	if Verify(credential, "") {
		t.Errorf("expected empty digest to fail")
	}
}
