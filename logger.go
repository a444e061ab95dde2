package cachekit

import "github.com/unkn0wn-root/cachekit/log"

type (
	Logger    = log.Logger
	Fields    = log.Fields
	NopLogger = log.NopLogger
)
