package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricEmailAttempt = "EmailAttempt"
	MetricEmailLatency = "EmailLatency"
	MetricQueueLag     = "QueueLag"

	// Dimension Keys
	DimEmailType = "EmailType"
	DimResult    = "Result"

	// Metric Namespace
	MetricNamespace = "Mailroom"
)
