package forecast

import "sync"

// calibrationLearningRate is the EMA learning rate applied when folding a
// resolved prediction into a participant's calibration score.
const calibrationLearningRate = 0.1

// calibrationStart is the neutral score assigned before a participant's
// first resolved prediction.
const calibrationStart = 0.5

// Calibration tracks per-participant forecasting accuracy. Scores live in
// [0,1] and double as aggregation weights. Safe for concurrent use.
type Calibration struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewCalibration creates an empty calibration tracker.
func NewCalibration() *Calibration {
	return &Calibration{scores: make(map[string]float64)}
}

// Score returns the participant's calibration score. The second return
// value is false if the participant has no resolved predictions yet.
func (c *Calibration) Score(participantID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	score, ok := c.scores[participantID]
	return score, ok
}

// Set overrides a participant's score directly. Used when loading persisted
// calibration state.
func (c *Calibration) Set(participantID string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[participantID] = clamp(score, 0, 1)
}

// Update folds a resolved prediction into the participant's score once
// ground truth is known. predictedProb is the original 0-100 probability;
// actual is 1 if the predicted outcome occurred, 0 otherwise. The score
// moves toward the prediction's accuracy (1 minus the absolute probability
// error) by the learning rate, starting from the neutral score, and is
// clamped to [0,1].
func (c *Calibration) Update(participantID string, predictedProb, actual float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.scores[participantID]
	if !ok {
		current = calibrationStart
	}

	accuracy := 1 - absFloat(clamp(predictedProb, 0, 100)/100-clamp(actual, 0, 1))
	next := clamp(current+calibrationLearningRate*(accuracy-current), 0, 1)
	c.scores[participantID] = next
	return next
}

// Len returns the number of tracked participants.
func (c *Calibration) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scores)
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
