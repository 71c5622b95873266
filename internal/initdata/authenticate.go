package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// secretContext scopes the derived key to Mini App init data.
const secretContext = "WebAppData"

func secretKey(token string) []byte {
	h := hmac.New(sha256.New, []byte(secretContext))
	h.Write([]byte(token))
	return h.Sum(nil)
}

// expectedHash returns the lowercase hex signature of dataCheckString.
func expectedHash(token, dataCheckString string) string {
	h := hmac.New(sha256.New, secretKey(token))
	h.Write([]byte(dataCheckString))
	return hex.EncodeToString(h.Sum(nil))
}

// verifyHash compares the rendered signature with the claimed one as strings.
// The claim is not hex-decoded: anything that is not the exact lowercase
// rendering is a mismatch.
func verifyHash(token, dataCheckString, claimed string) error {
	expected := expectedHash(token, dataCheckString)
	if !hmac.Equal([]byte(expected), []byte(claimed)) {
		return &Error{Kind: KindInvalidHash}
	}
	return nil
}
