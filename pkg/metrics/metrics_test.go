package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusLabel(nil))
	assert.Equal(t, StatusFailure, StatusLabel(errors.New("x")))
}

func TestUploadsTotalCounts(t *testing.T) {
	c := UploadsTotal.WithLabelValues("test-host", "segment", StatusSuccess)
	before := testutil.ToFloat64(c)

	c.Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestCollectorsAreRegistered(t *testing.T) {
	ConversionsTotal.WithLabelValues(StatusSuccess)
	assert.Positive(t, testutil.CollectAndCount(ConversionsTotal, "hlsdrop_conversions_total"))
}
