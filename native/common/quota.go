package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaSwapsExceeded   = errors.New("quota swaps exceeded")
	ErrQuotaVolumeExceeded  = errors.New("quota volume cap exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// QuotaNow captures the current usage counters for a taker within one epoch.
type QuotaNow struct {
	SwapCount  uint32
	VolumeUsed uint64
	EpochID    uint64
}

// Quota defines per-taker limits enforced on settlement entry points.
type Quota struct {
	MaxSwapsPerEpoch  uint32
	MaxVolumePerEpoch uint64
	EpochSeconds      uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxSwapsPerEpoch > 0 || q.MaxVolumePerEpoch > 0
}

// CheckQuota verifies whether one more swap consuming addVolume fits within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded; on failure the previous counters are
// returned unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addVolume uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if next.SwapCount == math.MaxUint32 {
		return prev, ErrQuotaCounterOverflow
	}
	next.SwapCount++
	if q.MaxSwapsPerEpoch > 0 && next.SwapCount > q.MaxSwapsPerEpoch {
		return prev, ErrQuotaSwapsExceeded
	}

	if addVolume > 0 {
		if next.VolumeUsed > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.VolumeUsed += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.VolumeUsed > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}
