package service

import "time"

// nowFunc is overridden in tests that need a deterministic clock.
var nowFunc = time.Now
