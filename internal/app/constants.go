package app

import "time"

const (
	Name           = "meshbridge"
	ConfigFilename = "meshbridge.yaml"

	writerQueueCapacity = 512
	pruneInterval       = time.Hour
	storeLoadTimeout    = 10 * time.Second
)
