package security

import "beacon-admission-service/internal/model"

// Untrusted reasons attached to receipts.
const (
	ReasonInvalidKey        = "invalid_key"
	ReasonMissingKey        = "missing_key"
	ReasonNoIngestionSecret = "no_ingestion_secret"
)

// Classify derives the trust level of an admitted event. A matched key earns
// partial trust whether or not a durable order id came with it; identifier
// completeness travels separately on the receipt. Nothing here grants full
// trust.
func Classify(key KeyResult) model.Trust {
	if key.Matched {
		return model.Trust{Level: model.TrustPartial}
	}

	trust := model.Trust{Level: model.TrustUntrusted}
	switch {
	case !key.SecretConfigured:
		trust.UntrustedReason = ReasonNoIngestionSecret
	case !key.KeyPresented:
		trust.UntrustedReason = ReasonMissingKey
	default:
		trust.UntrustedReason = ReasonInvalidKey
	}
	return trust
}
