package dispatch

import "errors"

// ErrNoBids indicates the collection window closed without a single response.
var ErrNoBids = errors.New("no bids received")

// ErrNoUnitsAvailable indicates neither the auction nor the proximity
// fallback could find a claimable unit.
var ErrNoUnitsAvailable = errors.New("no units available")
