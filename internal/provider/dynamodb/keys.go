package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// PK/SK prefix constants.
const (
	prefixBin     = "BIN#"
	prefixAttempt = "ATTEMPT#"
	prefixAlert   = "ALERT#"

	skStatus = "STATUS"
)

// sortableTime is fixed width so that SKs order chronologically.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func binPK(binID string) string { return prefixBin + binID }

func attemptSK(startedAt time.Time, attemptID string) string {
	return prefixAttempt + startedAt.UTC().Format(sortableTime) + "#" + attemptID
}

func alertSK(ts time.Time) string {
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return prefixAlert + ts.UTC().Format(sortableTime) + "#" + hex.EncodeToString(nonce)
}

func statusSK() string { return skStatus }

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}
