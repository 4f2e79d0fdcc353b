package auth

import "strconv"

// Reserved numeric identifiers kept for wire and storage compatibility with
// the existing user table. Call sites never compare against these directly;
// they go through [Identity].
const (
	// GuestID is the stored id of the unauthenticated principal.
	GuestID int64 = -1
	// SuperUserID is the stored id of the elevated system principal used by
	// batch and cron contexts.
	SuperUserID int64 = -2
)

// IdentityKind discriminates the closed set of principal classes.
type IdentityKind uint8

const (
	// IdentityGuest is an unauthenticated caller.
	IdentityGuest IdentityKind = iota
	// IdentitySuperUser is the elevated system principal.
	IdentitySuperUser
	// IdentityRegistered is a normal account with a positive id.
	IdentityRegistered
)

// Identity is a closed enum over guest, super-user, and registered principals.
// It replaces raw sentinel integers so a negative id can never be mistaken
// for a registered account.
type Identity struct {
	kind IdentityKind
	id   int64
}

// Guest returns the unauthenticated identity.
func Guest() Identity {
	return Identity{kind: IdentityGuest, id: GuestID}
}

// SuperUser returns the elevated system identity.
func SuperUser() Identity {
	return Identity{kind: IdentitySuperUser, id: SuperUserID}
}

// Registered returns the identity for a positive account id. Non-positive ids
// collapse to Guest rather than fabricating a registered principal.
func Registered(id int64) Identity {
	if id <= 0 {
		return Guest()
	}
	return Identity{kind: IdentityRegistered, id: id}
}

// IdentityFromID maps a stored numeric id back onto the enum.
func IdentityFromID(id int64) Identity {
	switch {
	case id == SuperUserID:
		return SuperUser()
	case id > 0:
		return Registered(id)
	default:
		return Guest()
	}
}

// Kind reports which class of principal this is.
func (i Identity) Kind() IdentityKind { return i.kind }

// ID returns the stored numeric id, including the reserved negatives.
func (i Identity) ID() int64 { return i.id }

// IsRegistered reports whether this is a normal account with id > 0.
func (i Identity) IsRegistered() bool { return i.kind == IdentityRegistered }

func (i Identity) String() string {
	switch i.kind {
	case IdentitySuperUser:
		return "super_user"
	case IdentityRegistered:
		return "user:" + strconv.FormatInt(i.id, 10)
	default:
		return "guest"
	}
}
