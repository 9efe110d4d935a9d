package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyHMACSignature(t *testing.T) {
	secret := []byte("shared-secret")
	body := []byte(`{"case_id":"abc"}`)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	validSig := hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name   string
		secret []byte
		body   []byte
		sigHex string
		want   bool
	}{
		{name: "valid signature", secret: secret, body: body, sigHex: validSig, want: true},
		{name: "wrong secret", secret: []byte("other-secret"), body: body, sigHex: validSig, want: false},
		{name: "tampered body", secret: secret, body: []byte(`{"case_id":"xyz"}`), sigHex: validSig, want: false},
		{name: "not hex", secret: secret, body: body, sigHex: "not-hex!!", want: false},
		{name: "empty signature", secret: secret, body: body, sigHex: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifyHMACSignature(tt.secret, tt.body, tt.sigHex)
			assert.Equal(t, tt.want, got)
		})
	}
}
