package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// TransactionID derives the download session key for a client fetching a
// file of a share. Repeated range requests from the same client map to the
// same id and therefore to the same session row.
func TransactionID(shareID string, fileID int64, clientIP string) string {
	h := sha256.New()
	h.Write([]byte(shareID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(fileID, 10)))
	h.Write([]byte{0})
	h.Write([]byte(clientIP))
	return hex.EncodeToString(h.Sum(nil))
}
