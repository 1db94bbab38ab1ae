package clients

import "time"

const (
	INITIAL_BACKOFF = 250 * time.Millisecond
	MAX_BACKOFF     = 4 * time.Second
	USER_AGENT      = "tweetpulse-client/1.0 (+https://github.com/spacesedan/tweetpulse)"

	HEALTHCHECK_TIMEOUT = 3 * time.Second
)
