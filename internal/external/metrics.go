package external

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"mailroom/internal/types"
)

// MetricResult is the Result dimension value on attempt metrics.
type MetricResult string

const (
	MetricResultSent    MetricResult = "sent"
	MetricResultSkipped MetricResult = "skipped"
	MetricResultFailed  MetricResult = "failed"
)

// EmailMetrics records delivery telemetry for the worker.
type EmailMetrics interface {
	// RecordAttempt emits one EmailAttempt datapoint with EmailType and
	// Result dimensions.
	RecordAttempt(ctx context.Context, emailType types.EmailType, result MetricResult)

	// RecordLatency emits the wall time of one job execution.
	RecordLatency(ctx context.Context, emailType types.EmailType, duration time.Duration)

	// RecordQueueLag emits the delay between enqueue and processing start.
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchEmailMetrics implements EmailMetrics against CloudWatch.
// Emission failures are logged and swallowed; telemetry never fails a job.
type CloudWatchEmailMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ EmailMetrics = (*CloudWatchEmailMetrics)(nil)

// NewCloudWatchEmailMetrics creates a recorder publishing to the mailroom
// namespace.
func NewCloudWatchEmailMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchEmailMetrics {
	return &CloudWatchEmailMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

func (m *CloudWatchEmailMetrics) RecordAttempt(ctx context.Context, emailType types.EmailType, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricEmailAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEmailType), Value: aws.String(string(emailType))},
			{Name: aws.String(types.DimResult), Value: aws.String(string(result))},
		},
	})
}

func (m *CloudWatchEmailMetrics) RecordLatency(ctx context.Context, emailType types.EmailType, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricEmailLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEmailType), Value: aws.String(string(emailType))},
		},
	})
}

func (m *CloudWatchEmailMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchEmailMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

// NoopEmailMetrics discards all telemetry. Used in local mode and tests.
type NoopEmailMetrics struct{}

var _ EmailMetrics = (*NoopEmailMetrics)(nil)

func (NoopEmailMetrics) RecordAttempt(context.Context, types.EmailType, MetricResult) {}
func (NoopEmailMetrics) RecordLatency(context.Context, types.EmailType, time.Duration) {}
func (NoopEmailMetrics) RecordQueueLag(context.Context, time.Duration) {}
