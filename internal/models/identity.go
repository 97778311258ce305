package models

// Identity is the actor behind a vote or like: either an authenticated
// user or an anonymous client holding an opaque token. The two are mutually
// exclusive; construct values through UserIdentity or AnonIdentity so the
// invariant cannot be violated at a call site.
type Identity struct {
	userID string
	anonID string
}

// UserIdentity returns an authenticated identity for the given user ID.
func UserIdentity(userID string) Identity {
	return Identity{userID: userID}
}

// AnonIdentity returns an anonymous identity for the given opaque token.
func AnonIdentity(token string) Identity {
	return Identity{anonID: token}
}

// IsZero reports whether the identity carries neither a user nor a token.
// A zero identity is rejected by every mutation path.
func (i Identity) IsZero() bool {
	return i.userID == "" && i.anonID == ""
}

// IsAnonymous reports whether the identity is an anonymous token.
func (i Identity) IsAnonymous() bool {
	return i.userID == "" && i.anonID != ""
}

// UserID returns the authenticated user ID, or "" for anonymous identities.
func (i Identity) UserID() string {
	return i.userID
}

// AnonID returns the anonymous token, or "" for authenticated identities.
func (i Identity) AnonID() string {
	return i.anonID
}

// Key returns the uniqueness key for one-vote-per-identity checks.
// User IDs and anonymous tokens live in separate namespaces.
func (i Identity) Key() string {
	if i.userID != "" {
		return "user:" + i.userID
	}
	if i.anonID != "" {
		return "anon:" + i.anonID
	}
	return ""
}

// String returns a loggable form of the identity.
func (i Identity) String() string {
	return i.Key()
}
