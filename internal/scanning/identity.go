package scanning

import (
	"crypto/md5"
	"encoding/hex"
)

const (
	autoPrefix = "AUTO-"
	// autoHashLen must stay at 10 hex chars of MD5 to match stored keys.
	autoHashLen = 10
)

// ResolveIdentity returns the receipt number used for deduplication. An
// extracted number is kept verbatim; otherwise the key is derived from the
// raw text so identical documents always collide.
func ResolveIdentity(data *ReceiptData, rawText string) string {
	if data != nil && data.ReceiptNumber != "" {
		return data.ReceiptNumber
	}
	sum := md5.Sum([]byte(rawText))
	return autoPrefix + hex.EncodeToString(sum[:])[:autoHashLen]
}
