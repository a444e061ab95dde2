// Package none provides the engine used when caching is disabled: writes
// succeed and do nothing, reads always miss.
package none

import (
	"context"
	"time"

	"github.com/unkn0wn-root/cachekit/engine"
)

type None struct{}

var _ engine.Engine = None{}

func New() None { return None{} }

func (None) Connect(context.Context) error                            { return nil }
func (None) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (None) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (None) Del(context.Context, string) error                        { return nil }
func (None) Expire(context.Context, string, time.Duration) error      { return nil }
func (None) Flush(context.Context, string) error                      { return nil }
func (None) Close(context.Context) error                              { return nil }

func (None) ExpiresAt(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (None) Client() (any, error) {
	return nil, engine.NotImplemented("none engine has no client")
}
