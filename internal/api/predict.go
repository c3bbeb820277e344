package api

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/MadBale/Mewsage-project/internal/catsound"
	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/datastore"
	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/melspec"
	"github.com/MadBale/Mewsage-project/internal/myaudio"
	"github.com/MadBale/Mewsage-project/internal/offload"
)

// PredictionResponse is the body returned by POST /predict. The cat sound
// fields stay null when the detector short-circuited the cascade.
type PredictionResponse struct {
	Success               bool               `json:"success"`
	CatDetected           bool               `json:"cat_detected"`
	CatDetectorPrediction string             `json:"cat_detector_prediction"`
	CatDetectorConfidence float64            `json:"cat_detector_confidence"`
	CatSoundPrediction    *string            `json:"cat_sound_prediction"`
	CatSoundConfidence    *float64           `json:"cat_sound_confidence"`
	AudioURL              string             `json:"audio_url"`
	Probabilities         map[string]float64 `json:"probabilities"`
	CatSoundProbabilities map[string]float64 `json:"cat_sound_probabilities"`
}

// RealtimeResponse is the body returned by POST /realtime_predict and by
// the WebSocket endpoint.
type RealtimeResponse struct {
	Success               bool               `json:"success"`
	CatDetected           bool               `json:"cat_detected"`
	CatDetectorPrediction string             `json:"cat_detector_prediction"`
	CatDetectorConfidence float64            `json:"cat_detector_confidence"`
	Message               string             `json:"message,omitempty"`
	Prediction            string             `json:"prediction,omitempty"`
	Confidence            *float64           `json:"confidence,omitempty"`
	Probabilities         map[string]float64 `json:"probabilities,omitempty"`
}

// Predict runs the full cascade over an uploaded audio file, archives the
// clip and appends the verdict to the ledger.
func (c *Controller) Predict(ctx echo.Context) error {
	data, filename, err := c.readUpload(ctx, "file")
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Invalid upload")
	}

	fileID := ctx.FormValue("file_id")
	if fileID == "" {
		fileID = uuid.New().String()
	}

	reqCtx := ctx.Request().Context()
	tensor, err := c.extractFeatures(reqCtx, c.Extractor, func() ([]float32, error) {
		return myaudio.DecodeFile(data, filename)
	})
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Audio processing failed")
	}

	result, err := c.runCascade(reqCtx, tensor)
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Prediction failed")
	}

	storedName, err := c.Archive.Store(filename, data)
	if c.Metrics != nil {
		c.Metrics.Archive.RecordStore(len(data), storedName != filename, err)
	}
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Failed to archive audio")
	}

	record := &datastore.Prediction{
		ID:         fileID,
		Timestamp:  time.Now().UTC(),
		Filename:   storedName,
		Prediction: result.RecordedLabel(),
		Confidence: result.RecordedConfidence(),
	}
	err = c.DS.Save(record)
	if c.Metrics != nil {
		c.Metrics.Datastore.RecordOperation("save", err)
	}
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Failed to record prediction")
	}
	c.historyCache.Flush()

	resp := &PredictionResponse{
		Success:               true,
		CatDetected:           result.CatDetected,
		CatDetectorPrediction: result.DetectorLabel,
		CatDetectorConfidence: result.DetectorConfidence,
		AudioURL:              "/static/audio/" + storedName,
		Probabilities:         result.DetectorProbabilities,
	}
	if result.CatDetected {
		resp.CatSoundPrediction = &result.SoundLabel
		resp.CatSoundConfidence = &result.SoundConfidence
		resp.CatSoundProbabilities = result.SoundProbabilities
	}
	return ctx.JSON(http.StatusOK, resp)
}

// RealtimePredict classifies a raw PCM upload without touching the ledger
// or the archive.
func (c *Controller) RealtimePredict(ctx echo.Context) error {
	data, _, err := c.readUpload(ctx, "audio")
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Invalid upload")
	}

	reqCtx := ctx.Request().Context()
	tensor, err := c.extractFeatures(reqCtx, c.RealtimeExtractor, func() ([]float32, error) {
		return myaudio.DecodeRawPCM(data)
	})
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Audio processing failed")
	}

	result, err := c.runCascade(reqCtx, tensor)
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Prediction failed")
	}

	return ctx.JSON(http.StatusOK, realtimeResponse(result))
}

func realtimeResponse(result *catsound.Result) *RealtimeResponse {
	resp := &RealtimeResponse{
		Success:               true,
		CatDetected:           result.CatDetected,
		CatDetectorPrediction: result.DetectorLabel,
		CatDetectorConfidence: result.DetectorConfidence,
	}
	if !result.CatDetected {
		resp.Message = "Not a cat sound"
		return resp
	}
	resp.Prediction = result.SoundLabel
	resp.Confidence = &result.SoundConfidence
	resp.Probabilities = result.SoundProbabilities
	return resp
}

// errPayloadTooLarge marks uploads past the cap. The body-limit middleware
// normally answers first; this keeps the 413 contract if a request slips
// past it.
var errPayloadTooLarge = errors.NewStd("uploaded file exceeds the size limit")

// readUpload pulls the named multipart file out of the request, enforcing
// the upload size cap before reading.
func (c *Controller) readUpload(ctx echo.Context, field string) ([]byte, string, error) {
	fileHeader, err := ctx.FormFile(field)
	if err != nil {
		return nil, "", errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("field", field).
			Build()
	}
	if fileHeader.Size > conf.MaxUploadBytes {
		return nil, "", errors.New(errPayloadTooLarge).
			Component("api").
			Category(errors.CategoryValidation).
			Context("size", fileHeader.Size).
			Build()
	}
	if fileHeader.Size == 0 {
		return nil, "", errors.Newf("empty audio file received").
			Component("api").
			Category(errors.CategoryInvalidAudio).
			Build()
	}

	data, err := readMultipartFile(fileHeader)
	if err != nil {
		return nil, "", errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Build()
	}
	return data, fileHeader.Filename, nil
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// extractFeatures decodes and extracts on the offload pool so handler
// goroutines stay free.
func (c *Controller) extractFeatures(ctx context.Context, extractor *melspec.Extractor, decode func() ([]float32, error)) (*melspec.Tensor, error) {
	start := time.Now()
	tensor, err := offload.Do(ctx, c.Pool, func() (*melspec.Tensor, error) {
		samples, err := decode()
		if err != nil {
			return nil, err
		}
		return extractor.Extract(samples)
	})
	if err == nil && c.Metrics != nil {
		c.Metrics.Catsound.RecordExtractionDuration(time.Since(start))
	}
	return tensor, err
}

// runCascade wraps Cascade.Run with the prediction metrics.
func (c *Controller) runCascade(ctx context.Context, tensor *melspec.Tensor) (*catsound.Result, error) {
	start := time.Now()
	result, err := c.Cascade.Run(ctx, tensor)
	if c.Metrics == nil {
		return result, err
	}

	if err != nil {
		c.Metrics.Catsound.RecordPredictionError("cascade")
		return nil, err
	}

	c.Metrics.Catsound.RecordPrediction("detector", result.DetectorLabel)
	c.Metrics.Catsound.RecordPredictionDuration("cascade", time.Since(start))
	if result.CatDetected {
		c.Metrics.Catsound.RecordPrediction("classifier", result.SoundLabel)
	} else {
		c.Metrics.Catsound.RecordCascadeSkip()
	}
	return result, nil
}
