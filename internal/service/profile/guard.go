package profile

// CheckVersion implements optimistic concurrency: the submitted version must
// equal the latest stored one. A missing profile is reported before any
// version comparison.
func CheckVersion(latest *Profile, submitted int) error {
	if latest == nil {
		return ErrNotFound
	}
	if submitted != latest.Version {
		return &VersionConflictError{Submitted: submitted, Latest: latest.Version}
	}
	return nil
}
