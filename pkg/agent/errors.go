package agent

import "errors"

// ErrConfiguration is wrapped by every error that stops a run before its
// first step: a missing goal, credentials or model, or an unusable
// checkpoint path.
var ErrConfiguration = errors.New("configuration error")
