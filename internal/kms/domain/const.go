package domain

// KeyState is the lifecycle state of a master key.
//
// Enabled is the initial state. ScheduleDeletion moves a key to PendingDeletion and
// CancelDeletion moves it back. Once the deletion date elapses the key becomes Deleted,
// which is terminal: every data key wrapped under it is permanently unrecoverable.
type KeyState string

const (
	// KeyStateEnabled keys generate and unwrap data keys.
	KeyStateEnabled KeyState = "enabled"

	// KeyStateDisabled keys refuse every cryptographic operation. AWS KMS reports this
	// state for keys disabled out of band.
	KeyStateDisabled KeyState = "disabled"

	// KeyStatePendingDeletion keys refuse every cryptographic operation until the deletion
	// is cancelled or the deletion date elapses.
	KeyStatePendingDeletion KeyState = "pending_deletion"

	// KeyStateDeleted keys are gone for good.
	KeyStateDeleted KeyState = "deleted"
)

const (
	// MinPendingWindowDays is the shortest waiting period accepted by ScheduleDeletion.
	MinPendingWindowDays = 7

	// MaxPendingWindowDays is the longest waiting period accepted by ScheduleDeletion.
	MaxPendingWindowDays = 30

	// DataKeySize is the size in bytes of every generated data key (AES-256).
	DataKeySize = 32

	// AliasPrefix is the mandatory prefix of alias names.
	AliasPrefix = "alias/"
)
