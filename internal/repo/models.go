package repo

import (
	"encoding/json"
	"maps"
)

// Storage keys, one per collection.
const (
	KeyUsers           = "users"
	KeyAds             = "ads"
	KeyMessages        = "messages"
	KeyChats           = "chats"
	KeyPayments        = "payments"
	KeySupportMessages = "supportMessages"
)

// Keys lists every collection key in save order.
var Keys = []string{KeyUsers, KeyAds, KeyMessages, KeyChats, KeyPayments, KeySupportMessages}

// Snapshot maps a collection key to its serialised JSON array.
// Keys missing from a loaded snapshot were never saved.
type Snapshot map[string]json.RawMessage

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Equal reports whether both snapshots hold byte-identical collections.
func (s Snapshot) Equal(other Snapshot) bool {
	return maps.EqualFunc(s, other, func(a, b json.RawMessage) bool {
		return string(a) == string(b)
	})
}
