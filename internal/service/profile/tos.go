package profile

// FirstTosAcceptance reports whether the terms of service are accepted for
// the first time. When true, inbox and webhook must be enabled regardless of
// the submitted flags.
func FirstTosAcceptance(previous, next *int) bool {
	return previous == nil && next != nil
}

func applyTosAutoEnable(stored *Profile, merged *Profile) {
	if FirstTosAcceptance(stored.AcceptedTosVersion, merged.AcceptedTosVersion) {
		merged.IsInboxEnabled = true
		merged.IsWebhookEnabled = true
	}
}
