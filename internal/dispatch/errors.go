package dispatch

import "errors"

// ErrListenerFailed wraps every error or panic raised by a listener.
var ErrListenerFailed = errors.New("dispatch: listener failed")
