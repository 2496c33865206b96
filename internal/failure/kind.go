package failure

import (
	"encoding/json"
	"fmt"
)

// Kind is a classified failure category.
type Kind string

const (
	Missing    Kind = "Missing"
	Permission Kind = "Permission"
	Exists     Kind = "Exists"
	Network    Kind = "Network"
	Disk       Kind = "Disk"
	Unknown    Kind = "Unknown"

	// Canceled is never produced by Classify. It is reported to callers when
	// an installation stops because its context was canceled.
	Canceled Kind = "Canceled"
)

// Kinds lists every kind Classify can return, in match order.
var Kinds = []Kind{Missing, Permission, Exists, Network, Disk, Unknown}

// Valid reports whether k is one of the classified kinds or Canceled.
func (k Kind) Valid() bool {
	if k == Canceled {
		return true
	}
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// UnmarshalJSON rejects kinds outside the closed set.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !Kind(s).Valid() {
		return fmt.Errorf("unknown error kind %q", s)
	}
	*k = Kind(s)
	return nil
}
