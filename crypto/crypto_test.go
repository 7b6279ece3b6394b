package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	plaintext := []byte("refresh-token-material")

	ct, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ct, plaintext) {
		t.Error("ciphertext contains plaintext")
	}
	pt, err := enc.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("round trip = %q", pt)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	ct, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	ct[len(ct)-1] ^= 0xff
	if _, err := enc.Decrypt(ct); err == nil {
		t.Fatal("tampered ciphertext decrypted")
	}
}

func TestNewAESEncryptorRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAESEncryptor(tt.key); err == nil {
				t.Error("bad key accepted")
			}
		})
	}
}

func TestStringHelpersPassEmptyThrough(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	if got, err := EncryptString(enc, ""); err != nil || got != "" {
		t.Errorf("EncryptString empty = %q, %v", got, err)
	}
	if got, err := DecryptString(enc, ""); err != nil || got != "" {
		t.Errorf("DecryptString empty = %q, %v", got, err)
	}

	ct, err := EncryptString(enc, "value")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := DecryptString(enc, ct)
	if err != nil || pt != "value" {
		t.Errorf("string round trip = %q, %v", pt, err)
	}
}
