package patreon

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
)

// VerifySignature checks the X-Patreon-Signature header against the raw,
// unparsed request body. Patreon signs webhook bodies with a hex-encoded
// MD5-HMAC over the exact byte sequence delivered, so this must run before
// any JSON decoding — a re-serialized body will not verify.
//
// It returns false, never an error: any malformed input is a rejection.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	// Hex-decode the header rather than comparing strings so casing
	// differences ("AB" vs "ab") do not reject a valid signature.
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(expected)
	return subtle.ConstantTimeCompare(got, want) == 1
}
