package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"

	"github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// defaultPolicyName is the only policy name AWS KMS accepts.
const defaultPolicyName = "default"

// KMSAPI is the subset of the AWS KMS API used by AWSClient. *kms.Client satisfies it.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	EnableKeyRotation(ctx context.Context, params *kms.EnableKeyRotationInput, optFns ...func(*kms.Options)) (*kms.EnableKeyRotationOutput, error)
	GetKeyRotationStatus(ctx context.Context, params *kms.GetKeyRotationStatusInput, optFns ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
	ListAliases(ctx context.Context, params *kms.ListAliasesInput, optFns ...func(*kms.Options)) (*kms.ListAliasesOutput, error)
	ScheduleKeyDeletion(ctx context.Context, params *kms.ScheduleKeyDeletionInput, optFns ...func(*kms.Options)) (*kms.ScheduleKeyDeletionOutput, error)
	CancelKeyDeletion(ctx context.Context, params *kms.CancelKeyDeletionInput, optFns ...func(*kms.Options)) (*kms.CancelKeyDeletionOutput, error)
	EnableKey(ctx context.Context, params *kms.EnableKeyInput, optFns ...func(*kms.Options)) (*kms.EnableKeyOutput, error)
	PutKeyPolicy(ctx context.Context, params *kms.PutKeyPolicyInput, optFns ...func(*kms.Options)) (*kms.PutKeyPolicyOutput, error)
	GetKeyPolicy(ctx context.Context, params *kms.GetKeyPolicyInput, optFns ...func(*kms.Options)) (*kms.GetKeyPolicyOutput, error)
	TagResource(ctx context.Context, params *kms.TagResourceInput, optFns ...func(*kms.Options)) (*kms.TagResourceOutput, error)
	ListResourceTags(ctx context.Context, params *kms.ListResourceTagsInput, optFns ...func(*kms.Options)) (*kms.ListResourceTagsOutput, error)
}

// NewAWSKMSAPI builds an AWS KMS API client from the default credential chain. region and
// endpoint are optional; endpoint points the client at a compatible service such as
// localstack.
func NewAWSKMSAPI(ctx context.Context, region, endpoint string) (KMSAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return kms.NewFromConfig(cfg, func(o *kms.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// AWSOption configures an AWSClient.
type AWSOption func(*AWSClient)

// WithAWSOperationTimeout bounds every AWS KMS call.
func WithAWSOperationTimeout(timeout time.Duration) AWSOption {
	return func(c *AWSClient) {
		c.timeout = timeout
	}
}

// AWSClient implements Client against AWS KMS. The key lifecycle is owned by AWS; this
// client only translates calls and errors.
type AWSClient struct {
	api     KMSAPI
	keyID   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAWSClient creates an AWS KMS backed client. keyID may be empty when the client is only
// used for lifecycle management.
func NewAWSClient(api KMSAPI, keyID string, logger *slog.Logger, opts ...AWSOption) *AWSClient {
	c := &AWSClient{
		api:     api,
		keyID:   keyID,
		timeout: DefaultOperationTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateDataKey asks AWS KMS for a new AES-256 data key under the configured key.
func (c *AWSClient) GenerateDataKey(ctx context.Context) (*kmsDomain.DataKey, error) {
	if c.keyID == "" {
		return nil, kmsDomain.ErrKMSNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.api.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(c.keyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, mapGenerateError(err)
	}
	if len(output.Plaintext) != kmsDomain.DataKeySize {
		kmsDomain.Wipe(output.Plaintext)
		return nil, fmt.Errorf("%w: unexpected data key size %d", kmsDomain.ErrKeyUnavailable, len(output.Plaintext))
	}

	return kmsDomain.NewDataKey(output.Plaintext, output.CiphertextBlob), nil
}

// UnwrapDataKey decrypts a wrapped data key. The key id is not sent: AWS reads it from
// the ciphertext, so data keys wrapped under a previously configured key still unwrap as
// long as that key is enabled and reachable.
func (c *AWSClient) UnwrapDataKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("%w: empty wrapped key", kmsDomain.ErrUnwrapFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.api.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: wrapped})
	if err != nil {
		return nil, mapUnwrapError(err)
	}
	if len(output.Plaintext) != kmsDomain.DataKeySize {
		kmsDomain.Wipe(output.Plaintext)
		return nil, fmt.Errorf("%w: unexpected data key size %d", kmsDomain.ErrUnwrapFailed, len(output.Plaintext))
	}

	return output.Plaintext, nil
}

// CreateKey creates a symmetric encrypt/decrypt key.
func (c *AWSClient) CreateKey(ctx context.Context, input kmsDomain.CreateKeyInput) (*kmsDomain.MasterKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.api.CreateKey(ctx, &kms.CreateKeyInput{
		Description: aws.String(input.Description),
		KeySpec:     types.KeySpecSymmetricDefault,
		KeyUsage:    types.KeyUsageTypeEncryptDecrypt,
		Tags:        toAWSTags(input.Tags),
	})
	if err != nil {
		return nil, mapLifecycleError(err)
	}

	key := fromKeyMetadata(output.KeyMetadata)
	key.Tags = copyTags(input.Tags)
	c.logger.Info("master key created", slog.String("key_id", key.ID))
	return key, nil
}

// DescribeKey returns the key metadata and its aliases.
func (c *AWSClient) DescribeKey(ctx context.Context, keyID string) (*kmsDomain.MasterKey, error) {
	if err := kmsDomain.ValidateKeyID(keyID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.api.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, mapLifecycleError(err)
	}
	key := fromKeyMetadata(output.KeyMetadata)

	aliases, err := c.listAliases(ctx, aws.String(key.ID))
	if err != nil {
		return nil, err
	}
	for _, alias := range aliases {
		key.Aliases = append(key.Aliases, alias.Name)
	}

	return key, nil
}

// EnableRotation turns on automatic annual rotation.
func (c *AWSClient) EnableRotation(ctx context.Context, keyID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.resolveKeyID(ctx, keyID)
	if err != nil {
		return err
	}

	if _, err := c.api.EnableKeyRotation(ctx, &kms.EnableKeyRotationInput{KeyId: id}); err != nil {
		return mapLifecycleError(err)
	}
	return nil
}

// RotationStatus reports whether automatic rotation is on.
func (c *AWSClient) RotationStatus(ctx context.Context, keyID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.resolveKeyID(ctx, keyID)
	if err != nil {
		return false, err
	}

	output, err := c.api.GetKeyRotationStatus(ctx, &kms.GetKeyRotationStatusInput{KeyId: id})
	if err != nil {
		return false, mapLifecycleError(err)
	}
	return output.KeyRotationEnabled, nil
}

// CreateAlias points name at the key.
func (c *AWSClient) CreateAlias(ctx context.Context, keyID, name string) error {
	if err := kmsDomain.ValidateAliasName(name); err != nil {
		return err
	}
	if err := kmsDomain.ValidateKeyID(keyID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(name),
		TargetKeyId: aws.String(keyID),
	})
	if err != nil {
		return mapLifecycleError(err)
	}
	return nil
}

// ListAliases lists every customer alias that targets a key.
func (c *AWSClient) ListAliases(ctx context.Context) ([]kmsDomain.Alias, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.listAliases(ctx, nil)
}

// ScheduleDeletion schedules the key for deletion. The window is validated locally and an
// out of range value never reaches AWS.
func (c *AWSClient) ScheduleDeletion(ctx context.Context, keyID string, pendingDays int) (time.Time, error) {
	if err := kmsDomain.ValidatePendingWindow(pendingDays); err != nil {
		return time.Time{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.resolveKeyID(ctx, keyID)
	if err != nil {
		return time.Time{}, err
	}

	output, err := c.api.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId:               id,
		PendingWindowInDays: aws.Int32(int32(pendingDays)),
	})
	if err != nil {
		return time.Time{}, mapLifecycleError(err)
	}

	var deletionDate time.Time
	if output.DeletionDate != nil {
		deletionDate = output.DeletionDate.UTC()
	}

	c.logger.Warn("master key scheduled for deletion",
		slog.String("key_id", aws.ToString(id)),
		slog.Time("deletion_date", deletionDate),
	)
	return deletionDate, nil
}

// CancelDeletion cancels a scheduled deletion and re-enables the key, since AWS leaves it
// disabled after cancellation.
func (c *AWSClient) CancelDeletion(ctx context.Context, keyID string) error {
	if err := kmsDomain.ValidateKeyID(keyID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	described, err := c.api.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return mapLifecycleError(err)
	}
	if described.KeyMetadata == nil || described.KeyMetadata.KeyState != types.KeyStatePendingDeletion {
		return kmsDomain.ErrKeyNotPendingDeletion
	}
	id := described.KeyMetadata.KeyId

	if _, err := c.api.CancelKeyDeletion(ctx, &kms.CancelKeyDeletionInput{KeyId: id}); err != nil {
		return mapLifecycleError(err)
	}
	if _, err := c.api.EnableKey(ctx, &kms.EnableKeyInput{KeyId: id}); err != nil {
		return mapLifecycleError(err)
	}

	c.logger.Info("master key deletion cancelled", slog.String("key_id", aws.ToString(id)))
	return nil
}

// SetPolicy replaces the default key policy.
func (c *AWSClient) SetPolicy(ctx context.Context, keyID, policy string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.resolveKeyID(ctx, keyID)
	if err != nil {
		return err
	}

	_, err = c.api.PutKeyPolicy(ctx, &kms.PutKeyPolicyInput{
		KeyId:      id,
		Policy:     aws.String(policy),
		PolicyName: aws.String(defaultPolicyName),
	})
	if err != nil {
		return mapLifecycleError(err)
	}
	return nil
}

// GetPolicy returns the default key policy.
func (c *AWSClient) GetPolicy(ctx context.Context, keyID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.resolveKeyID(ctx, keyID)
	if err != nil {
		return "", err
	}

	output, err := c.api.GetKeyPolicy(ctx, &kms.GetKeyPolicyInput{
		KeyId:      id,
		PolicyName: aws.String(defaultPolicyName),
	})
	if err != nil {
		return "", mapLifecycleError(err)
	}
	return aws.ToString(output.Policy), nil
}

// Tag adds or overwrites resource tags.
func (c *AWSClient) Tag(ctx context.Context, keyID string, tags map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.resolveKeyID(ctx, keyID)
	if err != nil {
		return err
	}

	if _, err := c.api.TagResource(ctx, &kms.TagResourceInput{KeyId: id, Tags: toAWSTags(tags)}); err != nil {
		return mapLifecycleError(err)
	}
	return nil
}

// ListTags returns every resource tag of the key.
func (c *AWSClient) ListTags(ctx context.Context, keyID string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.resolveKeyID(ctx, keyID)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string)
	input := &kms.ListResourceTagsInput{KeyId: id}
	for {
		output, err := c.api.ListResourceTags(ctx, input)
		if err != nil {
			return nil, mapLifecycleError(err)
		}
		for _, tag := range output.Tags {
			tags[aws.ToString(tag.TagKey)] = aws.ToString(tag.TagValue)
		}
		if !output.Truncated || output.NextMarker == nil {
			break
		}
		input.Marker = output.NextMarker
	}
	return tags, nil
}

// Close is a no-op; the AWS client holds no connections that need releasing.
func (c *AWSClient) Close() error {
	return nil
}

// resolveKeyID turns an alias into a key id. Several KMS operations reject alias names.
func (c *AWSClient) resolveKeyID(ctx context.Context, keyID string) (*string, error) {
	if err := kmsDomain.ValidateKeyID(keyID); err != nil {
		return nil, err
	}
	if !kmsDomain.IsAlias(keyID) {
		return aws.String(keyID), nil
	}

	output, err := c.api.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, mapLifecycleError(err)
	}
	if output.KeyMetadata == nil {
		return nil, kmsDomain.ErrMasterKeyNotFound
	}
	return output.KeyMetadata.KeyId, nil
}

func (c *AWSClient) listAliases(ctx context.Context, keyID *string) ([]kmsDomain.Alias, error) {
	var aliases []kmsDomain.Alias
	input := &kms.ListAliasesInput{KeyId: keyID}
	for {
		output, err := c.api.ListAliases(ctx, input)
		if err != nil {
			return nil, mapLifecycleError(err)
		}
		for _, entry := range output.Aliases {
			// AWS managed aliases without a target key are not interesting here.
			if entry.TargetKeyId == nil {
				continue
			}
			alias := kmsDomain.Alias{
				Name:  aws.ToString(entry.AliasName),
				KeyID: aws.ToString(entry.TargetKeyId),
			}
			if entry.CreationDate != nil {
				alias.CreatedAt = entry.CreationDate.UTC()
			}
			aliases = append(aliases, alias)
		}
		if !output.Truncated || output.NextMarker == nil {
			break
		}
		input.Marker = output.NextMarker
	}

	sort.Slice(aliases, func(i, j int) bool { return aliases[i].Name < aliases[j].Name })
	return aliases, nil
}

func fromKeyMetadata(metadata *types.KeyMetadata) *kmsDomain.MasterKey {
	if metadata == nil {
		return &kmsDomain.MasterKey{}
	}

	key := &kmsDomain.MasterKey{
		ID:          aws.ToString(metadata.KeyId),
		Ref:         aws.ToString(metadata.Arn),
		Description: aws.ToString(metadata.Description),
		Enabled:     metadata.Enabled,
		State:       fromAWSKeyState(metadata.KeyState),
	}
	if metadata.CreationDate != nil {
		key.CreatedAt = metadata.CreationDate.UTC()
		key.UpdatedAt = key.CreatedAt
	}
	if metadata.DeletionDate != nil {
		d := metadata.DeletionDate.UTC()
		key.DeletionDate = &d
	}
	return key
}

// fromAWSKeyState folds the AWS key states onto the lifecycle states. Transitional states
// (creating, pending import, unavailable) refuse cryptographic operations, like disabled.
func fromAWSKeyState(state types.KeyState) kmsDomain.KeyState {
	switch state {
	case types.KeyStateEnabled:
		return kmsDomain.KeyStateEnabled
	case types.KeyStatePendingDeletion, types.KeyStatePendingReplicaDeletion:
		return kmsDomain.KeyStatePendingDeletion
	default:
		return kmsDomain.KeyStateDisabled
	}
}

func toAWSTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(tags))
	for _, k := range keys {
		out = append(out, types.Tag{TagKey: aws.String(k), TagValue: aws.String(tags[k])})
	}
	return out
}

// isUnavailableError reports errors that mean the key cannot serve requests right now.
func isUnavailableError(err error) bool {
	var (
		disabled     *types.DisabledException
		invalidState *types.KMSInvalidStateException
		unavailable  *types.KeyUnavailableException
		dependency   *types.DependencyTimeoutException
		internal     *types.KMSInternalException
	)
	return errors.As(err, &disabled) ||
		errors.As(err, &invalidState) ||
		errors.As(err, &unavailable) ||
		errors.As(err, &dependency) ||
		errors.As(err, &internal) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func mapGenerateError(err error) error {
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", kmsDomain.ErrMasterKeyNotFound, err)
	}
	return fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
}

func mapUnwrapError(err error) error {
	if isUnavailableError(err) {
		return fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}

	var (
		invalidCiphertext *types.InvalidCiphertextException
		incorrectKey      *types.IncorrectKeyException
		notFound          *types.NotFoundException
		invalidUsage      *types.InvalidKeyUsageException
	)
	if errors.As(err, &invalidCiphertext) ||
		errors.As(err, &incorrectKey) ||
		errors.As(err, &notFound) ||
		errors.As(err, &invalidUsage) {
		return fmt.Errorf("%w: %w", kmsDomain.ErrUnwrapFailed, err)
	}

	// Remaining client faults (access denied to a foreign key) will not succeed on retry.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return fmt.Errorf("%w: %w", kmsDomain.ErrUnwrapFailed, err)
	}

	return fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
}

func mapLifecycleError(err error) error {
	var (
		notFound      *types.NotFoundException
		alreadyExists *types.AlreadyExistsException
		malformed     *types.MalformedPolicyDocumentException
		invalidState  *types.KMSInvalidStateException
		disabled      *types.DisabledException
	)

	switch {
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %w", kmsDomain.ErrMasterKeyNotFound, err)
	case errors.As(err, &alreadyExists):
		return fmt.Errorf("%w: %w", kmsDomain.ErrAliasAlreadyExists, err)
	case errors.As(err, &malformed):
		return fmt.Errorf("%w: %w", kmsDomain.ErrInvalidPolicy, err)
	case errors.As(err, &invalidState), errors.As(err, &disabled):
		return fmt.Errorf("%w: %w", kmsDomain.ErrKeyNotEnabled, err)
	default:
		return fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}
}
