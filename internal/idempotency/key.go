package idempotency

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// BatchKey derives the idempotency key for an ingestion batch:
// org_id : source_id : content_hash. The hash is order-sensitive over the
// serialized item payloads, so a byte-identical redelivery maps to the same
// key and a reordered batch does not.
func BatchKey(orgID string, raw []api.RawMetricData) string {
	return fmt.Sprintf("%s:%s:%s", orgID, batchSource(raw), ContentHash(raw))
}

// ContentHash is a stable sha256 over the batch content. The source used a
// non-collision-resistant rolling hash here; sha256 keeps the same
// deduplication contract without the collision weakness.
func ContentHash(raw []api.RawMetricData) string {
	h := sha256.New()
	var idx [4]byte
	for i, item := range raw {
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		h.Write(idx[:])
		h.Write([]byte(item.SourceID))
		h.Write([]byte{0})
		h.Write([]byte(item.SourceType))
		h.Write([]byte{0})
		h.Write(item.Payload)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// batchSource is the shared source id of the batch, or "mixed" when items
// arrive from more than one source in a single call.
func batchSource(raw []api.RawMetricData) string {
	if len(raw) == 0 {
		return "empty"
	}
	source := raw[0].SourceID
	for _, item := range raw[1:] {
		if item.SourceID != source {
			return "mixed"
		}
	}
	return source
}
