package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumPoints(m metricdata.Metrics) int64 {
	var total int64
	if s, ok := m.Data.(metricdata.Sum[int64]); ok {
		for _, dp := range s.DataPoints {
			total += dp.Value
		}
	}
	return total
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("db")

	m, err := NewDBMetrics(meter, nil, DBMetricsConfig{Enabled: true, SlowQueryThreshold: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordQuery(ctx, "SELECT", "person_events", 5*time.Millisecond)
	m.RecordQuery(ctx, "INSERT", "person_events", 80*time.Millisecond)
	m.RecordQuery(ctx, "", "", 90*time.Millisecond)

	got := collectMetrics(t, reader)
	assert.Equal(t, int64(3), sumPoints(got["db_query_total"]))
	assert.Equal(t, int64(2), sumPoints(got["db_slow_query_total"]))
	_, hasPool := got["db_pool_connections"]
	assert.False(t, hasPool)
}

func TestDBMetrics_PoolGauges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("db")

	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(7)

	m, err := NewDBMetrics(meter, sqlDB, DBMetricsConfig{Enabled: true}, zap.NewNop())
	require.NoError(t, err)

	got := collectMetrics(t, reader)
	maxConns, ok := got["db_pool_connections_max"]
	require.True(t, ok)
	gauge := maxConns.Data.(metricdata.Gauge[int64])
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)

	m.Stop()
	got = collectMetrics(t, reader)
	_, ok = got["db_pool_connections_max"]
	assert.False(t, ok)
}

func TestDBMetrics_RegisterCountsStatements(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("db")
	db := setupTestDB(t)

	m, err := NewDBMetrics(meter, nil, DBMetricsConfig{Enabled: true}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Register(db))

	require.NoError(t, db.Create(&testRow{Name: "Grace"}).Error)
	var rows []testRow
	require.NoError(t, db.Find(&rows).Error)

	got := collectMetrics(t, reader)
	assert.GreaterOrEqual(t, sumPoints(got["db_query_total"]), int64(2))
}

func TestRegisterDBMetrics_Disabled(t *testing.T) {
	db := setupTestDB(t)

	m, err := RegisterDBMetrics(db, nil, DBMetricsConfig{Enabled: true}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestDetectOperationType(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT * FROM person_events", "SELECT"},
		{"  insert into read_models values", "INSERT"},
		{"UPDATE person_events SET x = 1", "UPDATE"},
		{"delete from read_models", "DELETE"},
		{"WITH x AS (SELECT 1) SELECT * FROM x", "OTHER"},
		{"", "OTHER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectOperationType(tt.sql), tt.sql)
	}
}
