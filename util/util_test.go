package util

import (
	"encoding/pem"
	"strings"
	"testing"
)

func TestGeneratePemKeypair(t *testing.T) {
	keypair := GeneratePemKeypair()

	if keypair.Private == "" || keypair.Public == "" {
		t.Fatal("Keypair should contain both keys")
	}

	block, _ := pem.Decode([]byte(keypair.Private))
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		t.Errorf("Private key should be a PKCS1 PEM block, got %v", block)
	}

	block, _ = pem.Decode([]byte(keypair.Public))
	if block == nil || block.Type != "RSA PUBLIC KEY" {
		t.Errorf("Public key should be a PKCS1 PEM block, got %v", block)
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"newlines to spaces", "line1\nline2", "line1 line2"},
		{"html escaped", "<script>", "&lt;script&gt;"},
		{"plain text untouched", "hello world", "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := NormalizeInput(tt.input); result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, Name+"/") {
		t.Errorf("User agent should start with the app name, got %s", ua)
	}
	if !strings.Contains(ua, "ActivityPub") {
		t.Errorf("User agent should mention ActivityPub, got %s", ua)
	}
}

func TestPostTypeFederated(t *testing.T) {
	conf := &AppConfig{}
	conf.Conf.FederatedPostTypes = []string{"post", "event"}

	if !conf.PostTypeFederated("post") {
		t.Error("post should be federated")
	}
	if !conf.PostTypeFederated("event") {
		t.Error("event should be federated")
	}
	if conf.PostTypeFederated("recipe") {
		t.Error("recipe should not be federated")
	}
	if conf.PostTypeFederated("") {
		t.Error("empty post type should not be federated")
	}
}
