package enums

// SyncState is the wishlist engine's position in the guest/auth lifecycle.
type SyncState string

const (
	SyncStateGuest         SyncState = "guest"
	SyncStateMerging       SyncState = "merging"
	SyncStateAuthenticated SyncState = "authenticated"
)

// String implements fmt.Stringer.
func (s SyncState) String() string {
	return string(s)
}
