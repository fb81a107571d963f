package domain

// RoomID is the externally supplied room token. The relay treats it as an
// opaque string; format/width validation belongs to the UI layer.
type RoomID string
