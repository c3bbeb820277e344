package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MadBale/Mewsage-project/internal/archive"
	"github.com/MadBale/Mewsage-project/internal/catsound"
	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/datastore"
	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/melspec"
	"github.com/MadBale/Mewsage-project/internal/observability"
	"github.com/MadBale/Mewsage-project/internal/offload"
)

type fakeDS struct {
	mu    sync.Mutex
	saved []datastore.Prediction
}

func (f *fakeDS) Open() error  { return nil }
func (f *fakeDS) Close() error { return nil }

func (f *fakeDS) Save(p *datastore.Prediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.saved {
		if f.saved[i].ID == p.ID {
			return errors.Newf("prediction %s already recorded", p.ID).
				Category(errors.CategoryConflict).Build()
		}
	}
	f.saved = append(f.saved, *p)
	return nil
}

func (f *fakeDS) GetRecent(limit int) ([]datastore.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]datastore.Prediction, len(f.saved))
	copy(out, f.saved)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDS) DeleteByIDs(ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var kept []datastore.Prediction
	var deleted int64
	for i := range f.saved {
		if want[f.saved[i].ID] {
			deleted++
		} else {
			kept = append(kept, f.saved[i])
		}
	}
	if deleted == 0 {
		return 0, errors.Newf("no predictions matched the given ids").
			Category(errors.CategoryNotFound).Build()
	}
	f.saved = kept
	return deleted, nil
}

type stubPredictor struct {
	prediction catsound.Prediction
	err        error
}

func (s *stubPredictor) Predict(t *melspec.Tensor) (catsound.Prediction, error) {
	return s.prediction, s.err
}

type testEnv struct {
	controller *Controller
	ds         *fakeDS
	detector   *stubPredictor
	classifier *stubPredictor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	arch, err := archive.New(t.TempDir())
	require.NoError(t, err)

	pool := offload.NewPool(2)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	detector := &stubPredictor{prediction: catsound.Prediction{
		Label:         "cat",
		Confidence:    0.93,
		Probabilities: map[string]float64{"cat": 0.93, "dog": 0.04, "noise": 0.03},
	}}
	classifier := &stubPredictor{prediction: catsound.Prediction{
		Label:         "Purring",
		Confidence:    0.87,
		Probabilities: map[string]float64{"Purring": 0.87, "Angry": 0.13},
	}}
	cascade := catsound.NewCascade(detector, classifier, "cat", pool, 5*time.Second)

	extractor := melspec.New(melspec.Config{
		SampleRate: conf.FileSampleRate,
		NumMels:    conf.NumMels,
		FFTSize:    conf.FFTSize,
		HopLength:  conf.HopLength,
		NumFrames:  conf.NumFrames,
	})
	realtimeExtractor := melspec.New(melspec.Config{
		SampleRate: conf.RealtimeSampleRate,
		NumMels:    conf.NumMels,
		FFTSize:    conf.FFTSize,
		HopLength:  conf.HopLength,
		NumFrames:  conf.NumFrames,
	})

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	ds := &fakeDS{}
	settings := &conf.Settings{}
	settings.WebServer.Metrics = true
	controller := New(settings, ds, arch, extractor, realtimeExtractor, cascade, pool, metrics)

	return &testEnv{
		controller: controller,
		ds:         ds,
		detector:   detector,
		classifier: classifier,
	}
}

// wavBytes builds a 16-bit mono RIFF container holding a short ramp.
func wavBytes(t *testing.T, numSamples int) []byte {
	t.Helper()

	var data bytes.Buffer
	for i := 0; i < numSamples; i++ {
		require.NoError(t, binary.Write(&data, binary.LittleEndian, int16(i%2000-1000)))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len())))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(16)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(conf.FileSampleRate)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(conf.FileSampleRate*2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(16)))
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(data.Len())))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, payload []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	for k, v := range extra {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func doRequest(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.controller.Echo.ServeHTTP(rec, req)
	return rec
}

func TestPredictCatDetected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	body, contentType := multipartBody(t, "file", "meow.wav", wavBytes(t, 8000), map[string]string{"file_id": "req-1"})
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echoHeaderContentType, contentType)

	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.CatDetected)
	assert.Equal(t, "cat", resp.CatDetectorPrediction)
	require.NotNil(t, resp.CatSoundPrediction)
	assert.Equal(t, "Purring", *resp.CatSoundPrediction)
	require.NotNil(t, resp.CatSoundConfidence)
	assert.InDelta(t, 0.87, *resp.CatSoundConfidence, 1e-9)
	assert.Equal(t, "/static/audio/meow.wav", resp.AudioURL)
	assert.InDelta(t, 0.93, resp.Probabilities["cat"], 1e-9)

	// classifier verdict goes into the ledger
	require.Len(t, env.ds.saved, 1)
	assert.Equal(t, "req-1", env.ds.saved[0].ID)
	assert.Equal(t, "Purring", env.ds.saved[0].Prediction)
	assert.InDelta(t, 0.87, env.ds.saved[0].Confidence, 1e-9)
	assert.Equal(t, "meow.wav", env.ds.saved[0].Filename)
}

func TestPredictNoCatShortCircuits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.detector.prediction = catsound.Prediction{
		Label:         "dog",
		Confidence:    0.76,
		Probabilities: map[string]float64{"cat": 0.1, "dog": 0.76, "noise": 0.14},
	}

	body, contentType := multipartBody(t, "file", "bark.wav", wavBytes(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echoHeaderContentType, contentType)

	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.CatDetected)
	assert.Nil(t, resp.CatSoundPrediction)
	assert.Nil(t, resp.CatSoundConfidence)
	assert.Nil(t, resp.CatSoundProbabilities)

	// detector verdict goes into the ledger
	require.Len(t, env.ds.saved, 1)
	assert.Equal(t, "dog", env.ds.saved[0].Prediction)
	assert.InDelta(t, 0.76, env.ds.saved[0].Confidence, 1e-9)
	assert.NotEmpty(t, env.ds.saved[0].ID, "server assigns an id when none is sent")
}

func TestPredictDuplicateFileID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for i, wantCode := range []int{http.StatusOK, http.StatusConflict} {
		body, contentType := multipartBody(t, "file", "meow.wav", wavBytes(t, 8000), map[string]string{"file_id": "same-id"})
		req := httptest.NewRequest(http.MethodPost, "/predict", body)
		req.Header.Set(echoHeaderContentType, contentType)
		rec := doRequest(env, req)
		assert.Equal(t, wantCode, rec.Code, "request %d", i)
	}
}

func TestPredictRejectsBadUploads(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// no file field at all
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(nil))
	rec := doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// empty file
	body, contentType := multipartBody(t, "file", "empty.wav", nil, nil)
	req = httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echoHeaderContentType, contentType)
	rec = doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// not audio
	body, contentType = multipartBody(t, "file", "junk.wav", []byte("definitely not audio"), nil)
	req = httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echoHeaderContentType, contentType)
	rec = doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictServerFaultHidesInternalError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.detector.err = errors.Newf("tensor invoke failed for model cat-detector").
		Category(errors.CategoryModelInit).Build()

	body, contentType := multipartBody(t, "file", "meow.wav", wavBytes(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echoHeaderContentType, contentType)

	rec := doRequest(env, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, "Prediction failed", resp.Message)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.NotContains(t, rec.Body.String(), "tensor invoke",
		"internal error text must not reach the caller")
}

func TestPredictOversizeBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	body, contentType := multipartBody(t, "file", "huge.wav", make([]byte, conf.MaxUploadBytes+1), nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echoHeaderContentType, contentType)

	rec := doRequest(env, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRealtimePredictEmptyFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	body, contentType := multipartBody(t, "audio", "chunk.pcm", nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/realtime_predict", body)
	req.Header.Set(echoHeaderContentType, contentType)

	rec := doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.ds.saved)
}

func TestRealtimePredictDoesNotPersist(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// raw 16-bit PCM ramp
	var pcm bytes.Buffer
	for i := 0; i < 48000; i++ {
		require.NoError(t, binary.Write(&pcm, binary.LittleEndian, int16(i%2000-1000)))
	}

	body, contentType := multipartBody(t, "audio", "chunk.pcm", pcm.Bytes(), nil)
	req := httptest.NewRequest(http.MethodPost, "/realtime_predict", body)
	req.Header.Set(echoHeaderContentType, contentType)

	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RealtimeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.CatDetected)
	assert.Equal(t, "Purring", resp.Prediction)

	assert.Empty(t, env.ds.saved, "realtime predictions are not recorded")
}

func TestRealtimePredictNotCat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.detector.prediction = catsound.Prediction{Label: "noise", Confidence: 0.66}

	var pcm bytes.Buffer
	for i := 0; i < 4800; i++ {
		require.NoError(t, binary.Write(&pcm, binary.LittleEndian, int16(i%700-350)))
	}
	body, contentType := multipartBody(t, "audio", "chunk.pcm", pcm.Bytes(), nil)
	req := httptest.NewRequest(http.MethodPost, "/realtime_predict", body)
	req.Header.Set(echoHeaderContentType, contentType)

	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RealtimeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.CatDetected)
	assert.Equal(t, "Not a cat sound", resp.Message)
	assert.Empty(t, resp.Prediction)
}

func TestGetHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.ds.Save(&datastore.Prediction{
			ID:         string(rune('a' + i)),
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Filename:   "clip.wav",
			Prediction: "Angry",
			Confidence: 0.5,
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil)
	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "e", items[0].ID)
	assert.Equal(t, "d", items[1].ID)
	assert.Equal(t, "/static/audio/clip.wav", items[0].AudioURL)
	assert.Equal(t, base.Add(4*time.Hour).Format(time.RFC3339), items[0].Timestamp)
}

func TestGetHistoryInvalidLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, q := range []string{"limit=abc", "limit=0", "limit=-3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/history?"+q, nil)
		rec := doRequest(env, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestDeleteHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, env.ds.Save(&datastore.Prediction{ID: id, Timestamp: time.Now().UTC()}))
	}

	payload, _ := json.Marshal(DeleteRequest{IDs: []string{"x", "z", "ghost"}})
	req := httptest.NewRequest(http.MethodDelete, "/api/history/delete", bytes.NewReader(payload))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(2), resp.DeletedCount)
	assert.Equal(t, "Deleted 2 items", resp.Message)
}

func TestDeleteHistoryErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// empty id list
	payload, _ := json.Marshal(DeleteRequest{})
	req := httptest.NewRequest(http.MethodDelete, "/api/history/delete", bytes.NewReader(payload))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// nothing matches
	payload, _ = json.Marshal(DeleteRequest{IDs: []string{"ghost"}})
	req = httptest.NewRequest(http.MethodDelete, "/api/history/delete", bytes.NewReader(payload))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec = doRequest(env, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.CorrelationID)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestServeAudioClip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	name, err := env.controller.Archive.Store("purr.wav", []byte("wav-data"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/static/audio/"+name, nil)
	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wav-data", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/static/audio/missing.wav", nil)
	rec = doRequest(env, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/static/audio/bad%2Fname.wav", nil)
	rec = doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category errors.ErrorCategory
		want     int
	}{
		{errors.CategoryInvalidAudio, http.StatusBadRequest},
		{errors.CategoryValidation, http.StatusBadRequest},
		{errors.CategoryNotFound, http.StatusNotFound},
		{errors.CategoryConflict, http.StatusConflict},
		{errors.CategoryTimeout, http.StatusGatewayTimeout},
		{errors.CategoryDatabase, http.StatusInternalServerError},
		{errors.CategoryCascade, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := errors.Newf("boom").Category(tt.category).Build()
		assert.Equal(t, tt.want, statusForError(err), string(tt.category))
	}

	// the payload sentinel wins over its validation category
	oversize := errors.New(errPayloadTooLarge).Category(errors.CategoryValidation).Build()
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusForError(oversize))
}

const echoHeaderContentType = "Content-Type"
