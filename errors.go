package prefetch

import "errors"

// ErrTransport is returned by Fetch when the batch request fails at the
// network layer or the server answers with a non-2xx status.
var ErrTransport = errors.New("batch request failed")
