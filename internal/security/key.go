package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"beacon-admission-service/internal/model"
)

// KeyResult is the outcome of verifying a presented ingestion key.
type KeyResult struct {
	Matched            bool
	UsedPreviousSecret bool
	SecretConfigured   bool
	KeyPresented       bool
}

// VerifyKey compares presented against the shop's current secret and, while
// it has not expired, the previous one. Both comparisons always run on
// fixed-size digests so timing does not depend on which secret matched.
func VerifyKey(presented string, secrets model.IngestionSecrets, now time.Time) KeyResult {
	previousValid := secrets.Previous != "" &&
		(secrets.PreviousExpiresAt == nil || now.Before(*secrets.PreviousExpiresAt))

	res := KeyResult{
		SecretConfigured: secrets.Current != "" || previousValid,
		KeyPresented:     presented != "",
	}

	given := sha256.Sum256([]byte(presented))
	current := sha256.Sum256([]byte(secrets.Current))
	previous := sha256.Sum256([]byte(secrets.Previous))

	matchCurrent := subtle.ConstantTimeCompare(given[:], current[:]) == 1
	matchPrevious := subtle.ConstantTimeCompare(given[:], previous[:]) == 1

	if !res.KeyPresented {
		return res
	}
	switch {
	case matchCurrent && secrets.Current != "":
		res.Matched = true
	case matchPrevious && previousValid:
		res.Matched = true
		res.UsedPreviousSecret = true
	}
	return res
}
