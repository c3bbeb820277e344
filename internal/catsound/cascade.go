package catsound

import (
	"context"
	"log/slog"
	"time"

	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/logging"
	"github.com/MadBale/Mewsage-project/internal/melspec"
	"github.com/MadBale/Mewsage-project/internal/offload"
)

// Result is the outcome of one cascade run. The Sound fields are only
// populated when the detector found the target label.
type Result struct {
	CatDetected           bool
	DetectorLabel         string
	DetectorConfidence    float64
	DetectorProbabilities map[string]float64
	SoundLabel            string
	SoundConfidence       float64
	SoundProbabilities    map[string]float64
}

// RecordedLabel is the label that goes into the ledger: the detector's
// verdict when no cat was found, the classifier's otherwise.
func (r *Result) RecordedLabel() string {
	if r.CatDetected {
		return r.SoundLabel
	}
	return r.DetectorLabel
}

// RecordedConfidence pairs with RecordedLabel.
func (r *Result) RecordedConfidence() float64 {
	if r.CatDetected {
		return r.SoundConfidence
	}
	return r.DetectorConfidence
}

// Cascade chains the detector and the sound classifier. The classifier
// only runs when the detector's winning label equals TargetLabel.
type Cascade struct {
	Detector    Predictor
	Classifier  Predictor
	TargetLabel string

	pool    *offload.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewCascade wires the two models to the offload pool. A timeout of zero
// disables the per-run deadline.
func NewCascade(detector, classifier Predictor, targetLabel string, pool *offload.Pool, timeout time.Duration) *Cascade {
	return &Cascade{
		Detector:    detector,
		Classifier:  classifier,
		TargetLabel: targetLabel,
		pool:        pool,
		timeout:     timeout,
		logger:      logging.ForService("cascade"),
	}
}

// Run executes the cascade over one feature tensor. Both invocations run
// on the offload pool and share a single deadline, so a stuck model fails
// the request instead of holding the caller forever.
func (c *Cascade) Run(ctx context.Context, t *melspec.Tensor) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	detector, err := c.invoke(ctx, c.Detector, t)
	if err != nil {
		return nil, c.wrap(err, "detector")
	}

	result := &Result{
		CatDetected:           detector.Label == c.TargetLabel,
		DetectorLabel:         detector.Label,
		DetectorConfidence:    detector.Confidence,
		DetectorProbabilities: detector.Probabilities,
	}

	if !result.CatDetected {
		c.logger.Debug("cascade short-circuit",
			"detector_label", detector.Label,
			"confidence", detector.Confidence,
			"duration_ms", time.Since(start).Milliseconds())
		return result, nil
	}

	classifier, err := c.invoke(ctx, c.Classifier, t)
	if err != nil {
		return nil, c.wrap(err, "classifier")
	}
	result.SoundLabel = classifier.Label
	result.SoundConfidence = classifier.Confidence
	result.SoundProbabilities = classifier.Probabilities

	c.logger.Debug("cascade complete",
		"sound_label", classifier.Label,
		"confidence", classifier.Confidence,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (c *Cascade) invoke(ctx context.Context, model Predictor, t *melspec.Tensor) (Prediction, error) {
	if c.pool == nil {
		return model.Predict(t)
	}
	return offload.Do(ctx, c.pool, func() (Prediction, error) {
		return model.Predict(t)
	})
}

func (c *Cascade) wrap(err error, stage string) error {
	if errors.IsTimeout(err) {
		return err
	}
	return errors.New(err).
		Component("catsound").
		Category(errors.CategoryCascade).
		Context("stage", stage).
		Build()
}
