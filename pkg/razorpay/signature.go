package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyPaymentSignature checks the client-callback signature computed over
// "<orderID>|<paymentID>" with the API key secret.
func VerifyPaymentSignature(orderID, paymentID, secret, signature string) bool {
	return verify([]byte(orderID+"|"+paymentID), secret, signature)
}

// VerifyWebhookSignature checks the webhook signature over the raw request
// body. The body must be the exact bytes received; re-serializing the JSON
// changes the byte layout and invalidates the signature.
func VerifyWebhookSignature(body []byte, secret, signature string) bool {
	return verify(body, secret, signature)
}

func verify(message []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
