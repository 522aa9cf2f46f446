package video

import (
	"errors"
	"sync"
	"time"
)

// minBitsPerFrame is the minimum bits each frame should receive to keep
// acceptable quality for screen content. When bitrate drops, FPS is
// reduced so each frame stays above this threshold.
const minBitsPerFrame = 40000

// ewmaAlpha weights new RTCP samples against history: 30% new, 70% history,
// so a single transient spike doesn't trigger a bitrate swing.
const ewmaAlpha = 0.3

// stableRequired is the number of consecutive clean samples (~1s at the
// default cooldown) required before the controller upgrades bitrate.
const stableRequired = 2

// AdaptiveConfig configures an AdaptiveBitrate controller bound to one
// Encoder instance.
type AdaptiveConfig struct {
	Encoder        *Encoder
	InitialBitrate int
	MinBitrate     int
	MaxBitrate     int
	MinQuality     QualityPreset
	MaxQuality     QualityPreset
	Cooldown       time.Duration
	MaxFPS         int
	OnFPSChange    func(int)
}

// AdaptiveBitrate implements spec.md §4.4's AIMD congestion control: a
// multiplicative 0.70x cut on sustained loss, an additive +5%-of-ceiling
// step on sustained clean conditions, with EWMA-smoothed RTT/loss inputs
// so single outlier RTCP reports don't cause oscillation.
type AdaptiveBitrate struct {
	mu         sync.Mutex
	encoder    *Encoder
	minBitrate int
	maxBitrate int
	minQuality QualityPreset
	maxQuality QualityPreset
	cooldown   time.Duration
	lastAdjust time.Time

	targetBitrate int
	targetQuality QualityPreset

	maxFPS      int
	currentFPS  int
	onFPSChange func(int)

	smoothedLoss float64
	smoothedRTT  time.Duration
	samplesCount int

	stableCount int
}

func NewAdaptiveBitrate(cfg AdaptiveConfig) (*AdaptiveBitrate, error) {
	if cfg.Encoder == nil {
		return nil, errors.New("video: adaptive bitrate requires an encoder")
	}
	if cfg.MinBitrate <= 0 || cfg.MaxBitrate <= 0 || cfg.MinBitrate > cfg.MaxBitrate {
		return nil, errors.New("video: invalid bitrate bounds")
	}
	minQuality, maxQuality := cfg.MinQuality, cfg.MaxQuality
	if minQuality == "" {
		minQuality = QualityLow
	}
	if maxQuality == "" {
		maxQuality = QualityUltra
	}
	if !minQuality.valid() || !maxQuality.valid() {
		return nil, errors.New("video: invalid quality bounds")
	}
	if qualityRank(minQuality) > qualityRank(maxQuality) {
		minQuality, maxQuality = maxQuality, minQuality
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = 500 * time.Millisecond
	}

	initialBitrate := cfg.InitialBitrate
	if initialBitrate <= 0 {
		initialBitrate = cfg.MinBitrate
	}
	initialBitrate = clampInt(initialBitrate, cfg.MinBitrate, cfg.MaxBitrate)

	maxFPS := cfg.MaxFPS
	if maxFPS <= 0 {
		maxFPS = 60
	}
	initialFPS := clampInt(initialBitrate/minBitsPerFrame, 10, maxFPS)

	return &AdaptiveBitrate{
		encoder:       cfg.Encoder,
		minBitrate:    cfg.MinBitrate,
		maxBitrate:    cfg.MaxBitrate,
		minQuality:    minQuality,
		maxQuality:    maxQuality,
		cooldown:      cooldown,
		targetBitrate: initialBitrate,
		targetQuality: QualityAuto,
		maxFPS:        maxFPS,
		currentFPS:    initialFPS,
		onFPSChange:   cfg.OnFPSChange,
	}, nil
}

// SetMaxFPS updates the FPS ceiling, e.g. in response to a client set_fps
// control message.
func (a *AdaptiveBitrate) SetMaxFPS(max int) {
	if a == nil || max <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxFPS = max
}

// SetMaxBitrate updates the ceiling the controller ramps toward, clamping
// the current target immediately if it now exceeds the new ceiling.
func (a *AdaptiveBitrate) SetMaxBitrate(max int) {
	if a == nil || max <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxBitrate = max
	if a.targetBitrate > max {
		a.targetBitrate = max
		if a.encoder != nil {
			if err := a.encoder.SetBitrate(max); err != nil {
				log.Warn("failed to clamp bitrate", "target_bitrate", max, "error", err)
			}
		}
	}
}

// CurrentFPS returns the FPS the controller currently targets.
func (a *AdaptiveBitrate) CurrentFPS() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentFPS
}

// Update feeds one RTT/loss sample (from an RTCP receiver report) and
// adjusts bitrate, quality, and FPS as needed.
func (a *AdaptiveBitrate) Update(rtt time.Duration, packetLoss float64) {
	if a == nil {
		return
	}
	if packetLoss < 0 {
		packetLoss = 0
	}
	if packetLoss > 1 {
		packetLoss = 1
	}

	a.mu.Lock()

	now := time.Now()
	if !a.lastAdjust.IsZero() && now.Sub(a.lastAdjust) < a.cooldown {
		a.updateEWMA(rtt, packetLoss)
		a.mu.Unlock()
		return
	}

	a.updateEWMA(rtt, packetLoss)

	if a.samplesCount < 3 {
		a.mu.Unlock()
		return
	}

	loss := a.smoothedLoss
	smoothRTT := a.smoothedRTT

	degrade := loss >= 0.05 || (smoothRTT >= 300*time.Millisecond && loss >= 0.02)
	upgrade := loss <= 0.01

	if degrade {
		a.stableCount = 0
	} else if upgrade {
		a.stableCount++
	} else if a.stableCount > 0 {
		a.stableCount--
	}

	action := "hold"
	newBitrate := a.targetBitrate
	newQuality := a.targetQuality
	if newQuality == QualityAuto {
		newQuality = QualityMedium
	}

	if degrade {
		action = "degrade"
		newBitrate = int(float64(newBitrate) * 0.70)
		newBitrate = clampInt(newBitrate, a.minBitrate, a.maxBitrate)
		newQuality = stepQuality(newQuality, -1, a.minQuality, a.maxQuality)
	} else if a.stableCount >= stableRequired && a.targetBitrate < a.maxBitrate {
		action = "upgrade"
		step := a.maxBitrate / 20
		if step < 100_000 {
			step = 100_000
		}
		newBitrate = clampInt(newBitrate+step, a.minBitrate, a.maxBitrate)
		newQuality = stepQuality(newQuality, 1, a.minQuality, a.maxQuality)
		a.stableCount = 0
	}

	newFPS := clampInt(newBitrate/minBitsPerFrame, 10, a.maxFPS)

	if newBitrate == a.targetBitrate && newQuality == a.targetQuality && newFPS == a.currentFPS {
		a.mu.Unlock()
		return
	}

	prevBitrate := a.targetBitrate
	prevFPS := a.currentFPS
	a.targetBitrate = newBitrate
	a.targetQuality = newQuality
	a.currentFPS = newFPS
	a.lastAdjust = now
	encoder := a.encoder
	fpsCallback := a.onFPSChange
	a.mu.Unlock()

	log.Info("adaptive bitrate adjustment",
		"action", action,
		"bitrate", newBitrate,
		"prev_bitrate", prevBitrate,
		"fps", newFPS,
		"prev_fps", prevFPS,
		"quality", newQuality,
		"smoothed_loss", loss,
		"smoothed_rtt", smoothRTT.Round(time.Millisecond),
	)

	if newFPS != prevFPS && fpsCallback != nil {
		fpsCallback(newFPS)
	}

	if encoder != nil {
		if err := encoder.SetBitrate(newBitrate); err != nil {
			log.Warn("failed to set bitrate", "bitrate", newBitrate, "error", err)
		}
		if err := encoder.SetQuality(newQuality); err != nil {
			log.Warn("failed to set quality", "quality", newQuality, "error", err)
		}
	}
}

func (a *AdaptiveBitrate) updateEWMA(rtt time.Duration, loss float64) {
	a.samplesCount++
	if a.samplesCount == 1 {
		a.smoothedLoss = loss
		a.smoothedRTT = rtt
		return
	}
	a.smoothedLoss = ewmaAlpha*loss + (1-ewmaAlpha)*a.smoothedLoss
	a.smoothedRTT = time.Duration(ewmaAlpha*float64(rtt) + (1-ewmaAlpha)*float64(a.smoothedRTT))
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func stepQuality(current QualityPreset, delta int, minQ, maxQ QualityPreset) QualityPreset {
	order := []QualityPreset{QualityLow, QualityMedium, QualityHigh, QualityUltra}
	currentIdx := qualityRank(current)
	minIdx := qualityRank(minQ)
	maxIdx := qualityRank(maxQ)
	if currentIdx < 0 {
		currentIdx = qualityRank(QualityMedium)
	}
	newIdx := currentIdx + delta
	if newIdx < minIdx {
		newIdx = minIdx
	}
	if newIdx > maxIdx {
		newIdx = maxIdx
	}
	if newIdx < 0 || newIdx >= len(order) {
		return current
	}
	return order[newIdx]
}

func qualityRank(quality QualityPreset) int {
	switch quality {
	case QualityLow:
		return 0
	case QualityMedium:
		return 1
	case QualityHigh:
		return 2
	case QualityUltra:
		return 3
	default:
		return -1
	}
}
