package errors

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	ee := Newf("model file missing: %s", "cat_detector.tflite").
		Component("catsound").
		Category(CategoryModelLoad).
		Context("model_path", "models/cat_detector.tflite").
		Build()

	assert.Equal(t, "model file missing: cat_detector.tflite", ee.Error())
	assert.Equal(t, "catsound", ee.GetComponent())
	assert.Equal(t, string(CategoryModelLoad), ee.GetCategory())

	v, ok := ee.GetContext("model_path")
	require.True(t, ok)
	assert.Equal(t, "models/cat_detector.tflite", v)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestUnwrapPreservesChain(t *testing.T) {
	t.Parallel()

	ee := New(io.ErrUnexpectedEOF).Category(CategoryInvalidAudio).Build()
	assert.True(t, Is(ee, io.ErrUnexpectedEOF))

	var target *EnhancedError
	require.True(t, As(ee, &target))
	assert.Equal(t, CategoryInvalidAudio, target.Category)
}

func TestCategoryPredicates(t *testing.T) {
	t.Parallel()

	notFound := Newf("no predictions matched").Category(CategoryNotFound).Build()
	conflict := Newf("duplicate id").Category(CategoryConflict).Build()
	timeout := Newf("inference deadline exceeded").Category(CategoryTimeout).Build()

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(conflict))
	assert.True(t, IsConflict(conflict))
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsCategory(timeout, CategoryTimeout))
	assert.False(t, IsCategory(NewStd("plain"), CategoryTimeout))
}

func TestTiming(t *testing.T) {
	t.Parallel()

	ee := Newf("slow invoke").
		Category(CategoryCascade).
		Timing("detector-invoke", 1500*time.Millisecond).
		Build()

	op, ok := ee.GetContext("operation")
	require.True(t, ok)
	assert.Equal(t, "detector-invoke", op)

	ms, ok := ee.GetContext("duration_ms")
	require.True(t, ok)
	assert.Equal(t, int64(1500), ms)
}

type captureReporter struct {
	got []*EnhancedError
}

func (c *captureReporter) ReportError(ee *EnhancedError) { c.got = append(c.got, ee) }
func (c *captureReporter) IsEnabled() bool               { return true }

func TestTelemetryReporter(t *testing.T) {
	rep := &captureReporter{}
	SetTelemetryReporter(rep)
	defer SetTelemetryReporter(nil)

	ee := Newf("db write failed").Category(CategoryDatabase).Build()
	require.Len(t, rep.got, 1)
	assert.Same(t, ee, rep.got[0])
	assert.True(t, ee.IsReported())
}
