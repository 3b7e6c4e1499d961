package paymentsvc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// externalOpID derives the deterministic request tag adapters and the chain
// client must round-trip so the engine can correlate callbacks (spec §4.6
// "externalOpId = hash(paymentId, eventSeq)").
func externalOpID(paymentID string, eventSeq int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", paymentID, eventSeq)))
	return hex.EncodeToString(sum[:16])
}
