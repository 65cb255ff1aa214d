package service

import (
	"context"
	"time"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
	"github.com/allisson/fieldcrypt/internal/metrics"
)

// metricsDomain labels every key management metric.
const metricsDomain = "kms"

// clientWithMetrics decorates Client with metrics instrumentation.
type clientWithMetrics struct {
	next    Client
	metrics metrics.BusinessMetrics
}

// NewClientWithMetrics wraps a Client with metrics recording.
func NewClientWithMetrics(client Client, m metrics.BusinessMetrics) Client {
	return &clientWithMetrics{next: client, metrics: m}
}

func (c *clientWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	c.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

func (c *clientWithMetrics) GenerateDataKey(ctx context.Context) (*kmsDomain.DataKey, error) {
	start := time.Now()
	dataKey, err := c.next.GenerateDataKey(ctx)
	c.record(ctx, "generate_data_key", start, err)
	return dataKey, err
}

func (c *clientWithMetrics) UnwrapDataKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	start := time.Now()
	plaintext, err := c.next.UnwrapDataKey(ctx, wrapped)
	c.record(ctx, "unwrap_data_key", start, err)
	return plaintext, err
}

func (c *clientWithMetrics) CreateKey(
	ctx context.Context,
	input kmsDomain.CreateKeyInput,
) (*kmsDomain.MasterKey, error) {
	start := time.Now()
	key, err := c.next.CreateKey(ctx, input)
	c.record(ctx, "create_key", start, err)
	return key, err
}

func (c *clientWithMetrics) DescribeKey(ctx context.Context, keyID string) (*kmsDomain.MasterKey, error) {
	start := time.Now()
	key, err := c.next.DescribeKey(ctx, keyID)
	c.record(ctx, "describe_key", start, err)
	return key, err
}

func (c *clientWithMetrics) EnableRotation(ctx context.Context, keyID string) error {
	start := time.Now()
	err := c.next.EnableRotation(ctx, keyID)
	c.record(ctx, "enable_rotation", start, err)
	return err
}

func (c *clientWithMetrics) RotationStatus(ctx context.Context, keyID string) (bool, error) {
	start := time.Now()
	enabled, err := c.next.RotationStatus(ctx, keyID)
	c.record(ctx, "rotation_status", start, err)
	return enabled, err
}

func (c *clientWithMetrics) CreateAlias(ctx context.Context, keyID, name string) error {
	start := time.Now()
	err := c.next.CreateAlias(ctx, keyID, name)
	c.record(ctx, "create_alias", start, err)
	return err
}

func (c *clientWithMetrics) ListAliases(ctx context.Context) ([]kmsDomain.Alias, error) {
	start := time.Now()
	aliases, err := c.next.ListAliases(ctx)
	c.record(ctx, "list_aliases", start, err)
	return aliases, err
}

func (c *clientWithMetrics) ScheduleDeletion(ctx context.Context, keyID string, pendingDays int) (time.Time, error) {
	start := time.Now()
	deletionDate, err := c.next.ScheduleDeletion(ctx, keyID, pendingDays)
	c.record(ctx, "schedule_deletion", start, err)
	return deletionDate, err
}

func (c *clientWithMetrics) CancelDeletion(ctx context.Context, keyID string) error {
	start := time.Now()
	err := c.next.CancelDeletion(ctx, keyID)
	c.record(ctx, "cancel_deletion", start, err)
	return err
}

func (c *clientWithMetrics) SetPolicy(ctx context.Context, keyID, policy string) error {
	start := time.Now()
	err := c.next.SetPolicy(ctx, keyID, policy)
	c.record(ctx, "set_policy", start, err)
	return err
}

func (c *clientWithMetrics) GetPolicy(ctx context.Context, keyID string) (string, error) {
	start := time.Now()
	policy, err := c.next.GetPolicy(ctx, keyID)
	c.record(ctx, "get_policy", start, err)
	return policy, err
}

func (c *clientWithMetrics) Tag(ctx context.Context, keyID string, tags map[string]string) error {
	start := time.Now()
	err := c.next.Tag(ctx, keyID, tags)
	c.record(ctx, "tag", start, err)
	return err
}

func (c *clientWithMetrics) ListTags(ctx context.Context, keyID string) (map[string]string, error) {
	start := time.Now()
	tags, err := c.next.ListTags(ctx, keyID)
	c.record(ctx, "list_tags", start, err)
	return tags, err
}

func (c *clientWithMetrics) Close() error {
	return c.next.Close()
}
