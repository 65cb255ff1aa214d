package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertBizMetricLine matches a metric line by name, a partial label pattern and a value.
// The exporter adds otel_scope labels, so labels are matched loosely.
func assertBizMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func TestBusinessMetrics(t *testing.T) {
	provider, err := NewProvider("biz_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "biz_test")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "kms", "generate_data_key", StatusSuccess)
	bm.RecordOperation(ctx, "kms", "generate_data_key", StatusSuccess)
	bm.RecordOperation(ctx, "kms", "generate_data_key", StatusError)
	bm.RecordOperation(ctx, "envelope", "rotate", StatusSuccess)

	bm.RecordDuration(ctx, "kms", "generate_data_key", 40*time.Millisecond, StatusSuccess)
	bm.RecordDuration(ctx, "kms", "generate_data_key", 60*time.Millisecond, StatusSuccess)
	bm.RecordDuration(ctx, "envelope", "decrypt", 300*time.Microsecond, StatusSuccess)

	output := scrape(t, provider)

	assertBizMetricLine(t, output, `biz_test_operations_total`,
		`domain="kms".*operation="generate_data_key".*status="success"`, `2`)
	assertBizMetricLine(t, output, `biz_test_operations_total`,
		`domain="kms".*operation="generate_data_key".*status="error"`, `1`)
	assertBizMetricLine(t, output, `biz_test_operations_total`,
		`domain="envelope".*operation="rotate".*status="success"`, `1`)
	assertBizMetricLine(t, output, `biz_test_operation_duration_seconds_count`,
		`domain="kms".*operation="generate_data_key".*status="success"`, `2`)

	t.Run("Success_UsesLatencyBuckets", func(t *testing.T) {
		// 300µs lands in the smallest bucket, which the default boundaries do not have.
		assertBizMetricLine(t, output, `biz_test_operation_duration_seconds_bucket`,
			`domain="envelope".*operation="decrypt".*le="0.0005"`, `1`)
		assertBizMetricLine(t, output, `biz_test_operation_duration_seconds_bucket`,
			`domain="kms".*operation="generate_data_key".*le="0.05"`, `1`)
	})
}

func TestNoOpBusinessMetrics(t *testing.T) {
	bm := NewNoOpBusinessMetrics()
	assert.IsType(t, &NoOpBusinessMetrics{}, bm)
	assert.NotPanics(t, func() {
		bm.RecordOperation(context.Background(), "kms", "unwrap_data_key", StatusError)
		bm.RecordDuration(context.Background(), "envelope", "encrypt", time.Millisecond, StatusSuccess)
	})
}
