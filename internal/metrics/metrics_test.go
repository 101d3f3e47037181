package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOrder(t *testing.T) {
	before := testutil.ToFloat64(ordersPlaced)

	RecordOrder(125)

	assert.Equal(t, before+1, testutil.ToFloat64(ordersPlaced))
}

func TestRecordHTTPRequest(t *testing.T) {
	RecordHTTPRequest("GET", "/Render/Index", "200")

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/Render/Index", "200")))
}
