package model

// GuestOwnerKey is the sentinel index key under which records of
// unauthenticated sessions are stored. Guest records stay queryable as a
// group and follow the same expiry rules as authenticated ones.
const GuestOwnerKey = "__guest__"

// NormalizeOwnerKey maps a nullable owner id to the key used by the owner
// indexes. This is the single place where the guest sentinel is applied;
// every store boundary goes through it.
func NormalizeOwnerKey(ownerID *string) string {
	if ownerID == nil || *ownerID == "" {
		return GuestOwnerKey
	}
	return *ownerID
}
