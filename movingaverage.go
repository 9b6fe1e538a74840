package stress

import (
	"math"
	"sync"
)

// MovingAverage keeps the mean of the last Window values added.
// It is safe for concurrent use.
type MovingAverage struct {
	Window int

	l           sync.RWMutex
	values      []float64
	pos         int
	slotsFilled bool
}

func NewMovingAverage(window int) *MovingAverage {
	if window < 1 {
		window = 1
	}
	return &MovingAverage{
		Window: window,
		values: make([]float64, window),
	}
}

// Add records values, NaN and Inf are dropped.
func (ma *MovingAverage) Add(values ...float64) {
	ma.l.Lock()
	defer ma.l.Unlock()
	for _, val := range values {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		ma.values[ma.pos] = val
		ma.pos++
		if ma.pos == ma.Window {
			ma.pos = 0
			ma.slotsFilled = true
		}
	}
}

// Avg returns 0 while nothing has been added.
func (ma *MovingAverage) Avg() float64 {
	ma.l.RLock()
	defer ma.l.RUnlock()
	values := ma.filled()
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}

func (ma *MovingAverage) Count() int {
	ma.l.RLock()
	defer ma.l.RUnlock()
	return len(ma.filled())
}

func (ma *MovingAverage) SlotsFilled() bool {
	ma.l.RLock()
	defer ma.l.RUnlock()
	return ma.slotsFilled
}

// caller holds l
func (ma *MovingAverage) filled() []float64 {
	if ma.slotsFilled {
		return ma.values
	}
	return ma.values[:ma.pos]
}
