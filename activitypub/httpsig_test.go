package activitypub

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"strings"
	"testing"
	"time"
)

// testKey generates a small keypair; signing tests don't need 4096 bits
func testKey(t *testing.T) *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func privatePem(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func publicPemPKCS1(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}))
}

func publicPemPKIX(t *testing.T, key *rsa.PrivateKey) string {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestParsePrivateKeyRoundTrip(t *testing.T) {
	key := testKey(t)

	parsed, err := ParsePrivateKey(privatePem(key))
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if parsed.N.Cmp(key.N) != 0 {
		t.Error("Parsed key does not match the original")
	}
}

func TestParsePrivateKeyGarbage(t *testing.T) {
	if _, err := ParsePrivateKey("not a pem block"); err == nil {
		t.Error("Expected error for garbage input")
	}
	if _, err := ParsePrivateKey(""); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestParsePublicKeyBothEncodings(t *testing.T) {
	key := testKey(t)

	// Remote servers publish PKIX blocks
	parsed, err := ParsePublicKey(publicPemPKIX(t, key))
	if err != nil {
		t.Fatalf("ParsePublicKey failed on PKIX: %v", err)
	}
	if parsed.N.Cmp(key.N) != 0 {
		t.Error("PKIX key does not match the original")
	}

	// Our own keys are PKCS1
	parsed, err = ParsePublicKey(publicPemPKCS1(key))
	if err != nil {
		t.Fatalf("ParsePublicKey failed on PKCS1: %v", err)
	}
	if parsed.N.Cmp(key.N) != 0 {
		t.Error("PKCS1 key does not match the original")
	}
}

func TestParsePublicKeyGarbage(t *testing.T) {
	if _, err := ParsePublicKey("-----BEGIN PUBLIC KEY-----\nZm9v\n-----END PUBLIC KEY-----"); err == nil {
		t.Error("Expected error for invalid key bytes")
	}
}

func signedTestRequest(t *testing.T, key *rsa.PrivateKey, keyId string) *http.Request {
	body := []byte(`{"type":"Create"}`)
	req, err := http.NewRequest("POST", "https://remote.example/inbox", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	hash := sha256.Sum256(body)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", "remote.example")
	req.Header.Set("Digest", "SHA-256="+base64.StdEncoding.EncodeToString(hash[:]))

	if err := SignRequest(req, key, keyId); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	return req
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key := testKey(t)
	keyId := "https://example.com/users/admin#main-key"

	req := signedTestRequest(t, key, keyId)

	sig := req.Header.Get("Signature")
	if sig == "" {
		t.Fatal("Expected a Signature header")
	}
	if !strings.Contains(sig, keyId) {
		t.Errorf("Signature header should reference the keyId: %s", sig)
	}
	if req.Header.Get("Digest") == "" {
		t.Error("Expected a Digest header")
	}

	actorURI, err := VerifyRequest(req, publicPemPKIX(t, key))
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}
	if actorURI != "https://example.com/users/admin" {
		t.Errorf("Expected actor URI without fragment, got %s", actorURI)
	}
}

func TestVerifyRequestWrongKey(t *testing.T) {
	key := testKey(t)
	otherKey := testKey(t)

	req := signedTestRequest(t, key, "https://example.com/users/admin#main-key")

	if _, err := VerifyRequest(req, publicPemPKIX(t, otherKey)); err == nil {
		t.Error("Expected verification to fail with the wrong key")
	}
}

func TestVerifyRequestUnsigned(t *testing.T) {
	key := testKey(t)
	req, err := http.NewRequest("POST", "https://remote.example/inbox", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	if _, err := VerifyRequest(req, publicPemPKIX(t, key)); err == nil {
		t.Error("Expected error for a request without a signature")
	}
}
