// Package sloghooks reports service hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/cachekit"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery     uint64
	ReadDegradedEvery uint64
	// Joined hydrations are logged only when set.
	LogShared bool
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	degradedCtr atomic.Uint64
}

var _ cachekit.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ReadDegraded(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.ReadDegradedEvery, &h.degradedCtr) {
		return
	}
	h.l.Warn("cachekit.read_degraded",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("cachekit.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) HydrateShared(storageKey string) {
	if h.l == nil || !h.opts.LogShared {
		return
	}
	h.l.Debug("cachekit.hydrate_shared",
		"key", h.redact(storageKey))
}

func (h *Hooks) HydrateStoreFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachekit.hydrate_store_failed",
		"key", h.redact(storageKey),
		"err", err)
}
