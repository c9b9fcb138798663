package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	secretKey := "gateway-secret"
	payload := "order_123|pay_456"

	signature := svc.Sign(secretKey, payload)

	// Should be lowercase hex
	assert.Regexp(t, `^[0-9a-f]{64}$`, signature, "signature should be 64-char lowercase hex (SHA-256)")
	assert.True(t, svc.Verify(secretKey, payload, signature))
}

func TestHMACSignatureService_VerifyFails(t *testing.T) {
	svc := NewHMACSignatureService()
	signature := svc.Sign("correct-key", "order_1|pay_1")

	tests := []struct {
		name, key, payload, sig string
	}{
		{"wrong key", "wrong-key", "order_1|pay_1", signature},
		{"tampered payload", "correct-key", "order_1|pay_2", signature},
		{"garbage signature", "correct-key", "order_1|pay_1", "deadbeef"},
		{"empty signature", "correct-key", "order_1|pay_1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, svc.Verify(tt.key, tt.payload, tt.sig))
		})
	}
}
