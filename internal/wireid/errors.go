package wireid

import "errors"

var errShortID = errors.New("wireid: wire identifier must be exactly 16 bytes")
