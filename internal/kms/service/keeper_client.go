package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"gocloud.dev/gcerrors"

	"github.com/allisson/fieldcrypt/internal/database"
	"github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
	appValidation "github.com/allisson/fieldcrypt/internal/validation"
)

// keyRefPrefix prefixes the fully qualified reference of keeper master keys.
const keyRefPrefix = "urn:fieldcrypt:key:"

// KeeperOption configures a KeeperClient.
type KeeperOption func(*KeeperClient)

// WithKeeperClock replaces the clock used for deletion dates and timestamps.
func WithKeeperClock(clock quartz.Clock) KeeperOption {
	return func(c *KeeperClient) {
		c.clock = clock
	}
}

// WithKeeperOperationTimeout bounds every keeper and repository call.
func WithKeeperOperationTimeout(timeout time.Duration) KeeperOption {
	return func(c *KeeperClient) {
		c.timeout = timeout
	}
}

// KeeperClient implements Client on top of gocloud.dev/secrets keepers. The keeper only
// wraps and unwraps; state, aliases, rotation flag, policy and tags live in the
// MasterKeyRepository.
//
// Deletion is applied lazily: the first access to a key pending deletion after its
// deletion date persists the Deleted state and closes the keeper. From then on every
// data key wrapped under it fails to unwrap.
type KeeperClient struct {
	repo         MasterKeyRepository
	txManager    database.TxManager
	kmsService   KMSService
	defaultKeyID string
	timeout      time.Duration
	clock        quartz.Clock
	logger       *slog.Logger

	mu      sync.Mutex
	keepers map[string]Keeper
}

// NewKeeperClient creates a keeper backed client. defaultKeyID may be empty when the
// client is only used for lifecycle management.
func NewKeeperClient(
	repo MasterKeyRepository,
	txManager database.TxManager,
	kmsService KMSService,
	defaultKeyID string,
	logger *slog.Logger,
	opts ...KeeperOption,
) *KeeperClient {
	c := &KeeperClient{
		repo:         repo,
		txManager:    txManager,
		kmsService:   kmsService,
		defaultKeyID: defaultKeyID,
		timeout:      DefaultOperationTimeout,
		clock:        quartz.NewReal(),
		logger:       logger,
		keepers:      make(map[string]Keeper),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateDataKey generates 32 random bytes and wraps them under the default master key.
func (c *KeeperClient) GenerateDataKey(ctx context.Context) (*kmsDomain.DataKey, error) {
	if c.defaultKeyID == "" {
		return nil, kmsDomain.ErrKMSNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key, err := c.loadKey(ctx, c.defaultKeyID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}
	if key.State != kmsDomain.KeyStateEnabled {
		return nil, fmt.Errorf("%w: key %s is %s", kmsDomain.ErrKeyUnavailable, key.ID, key.State)
	}

	keeper, err := c.keeper(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}

	plaintext := make([]byte, kmsDomain.DataKeySize)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	ciphertext, err := keeper.Encrypt(ctx, plaintext)
	if err != nil {
		kmsDomain.Wipe(plaintext)
		return nil, fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}

	wrapped, err := encodeWrappedKey(key.ID, ciphertext)
	if err != nil {
		kmsDomain.Wipe(plaintext)
		return nil, err
	}

	return kmsDomain.NewDataKey(plaintext, wrapped), nil
}

// UnwrapDataKey locates the master key recorded in the wrapped key and asks its keeper to
// decrypt the data key.
func (c *KeeperClient) UnwrapDataKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	keyID, ciphertext, err := decodeWrappedKey(wrapped)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key, err := c.loadKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrInvalidInput) {
			return nil, fmt.Errorf("%w: %w", kmsDomain.ErrUnwrapFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}

	switch key.State {
	case kmsDomain.KeyStateDeleted:
		return nil, fmt.Errorf("%w: key %s is deleted", kmsDomain.ErrUnwrapFailed, key.ID)
	case kmsDomain.KeyStatePendingDeletion, kmsDomain.KeyStateDisabled:
		return nil, fmt.Errorf("%w: key %s is %s", kmsDomain.ErrKeyUnavailable, key.ID, key.State)
	}

	keeper, err := c.keeper(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}

	plaintext, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, mapKeeperError(err)
	}
	if len(plaintext) != kmsDomain.DataKeySize {
		kmsDomain.Wipe(plaintext)
		return nil, fmt.Errorf("%w: unexpected data key size %d", kmsDomain.ErrUnwrapFailed, len(plaintext))
	}

	return plaintext, nil
}

// CreateKey registers a new enabled master key reachable through input.KeyURI.
func (c *KeeperClient) CreateKey(
	ctx context.Context,
	input kmsDomain.CreateKeyInput,
) (*kmsDomain.MasterKey, error) {
	if input.KeyURI == "" {
		return nil, kmsDomain.ErrInvalidKeyURI
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Fail early on URIs the keeper cannot open.
	keeper, err := c.kmsService.OpenKeeper(ctx, input.KeyURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kmsDomain.ErrInvalidKeyURI, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		_ = keeper.Close()
		return nil, fmt.Errorf("failed to generate key id: %w", err)
	}

	now := c.clock.Now().UTC()
	key := &kmsDomain.MasterKey{
		ID:          id.String(),
		Ref:         keyRefPrefix + id.String(),
		KeyURI:      input.KeyURI,
		Description: input.Description,
		Enabled:     true,
		State:       kmsDomain.KeyStateEnabled,
		Tags:        copyTags(input.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := c.repo.Create(ctx, key); err != nil {
		_ = keeper.Close()
		return nil, err
	}

	c.mu.Lock()
	c.keepers[key.ID] = keeper
	c.mu.Unlock()

	c.logger.Info("master key created", slog.String("key_id", key.ID), slog.String("key_uri", key.RedactedKeyURI()))

	return key, nil
}

// DescribeKey returns the key metadata including the aliases that point at it.
func (c *KeeperClient) DescribeKey(ctx context.Context, keyID string) (*kmsDomain.MasterKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key, err := c.loadKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	aliases, err := c.repo.ListAliases(ctx)
	if err != nil {
		return nil, err
	}
	key.Aliases = nil
	for _, alias := range aliases {
		if alias.KeyID == key.ID {
			key.Aliases = append(key.Aliases, alias.Name)
		}
	}

	return key, nil
}

// EnableRotation records that the master key material should rotate annually. Keeper
// providers rotate key versions on their own schedule; the flag documents the intent.
func (c *KeeperClient) EnableRotation(ctx context.Context, keyID string) error {
	return c.updateKey(ctx, keyID, func(key *kmsDomain.MasterKey, now time.Time) error {
		if key.State != kmsDomain.KeyStateEnabled {
			return kmsDomain.ErrKeyNotEnabled
		}
		key.RotationEnabled = true
		key.UpdatedAt = now
		return nil
	})
}

// RotationStatus reports the rotation flag.
func (c *KeeperClient) RotationStatus(ctx context.Context, keyID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key, err := c.loadKey(ctx, keyID)
	if err != nil {
		return false, err
	}
	return key.RotationEnabled, nil
}

// CreateAlias points name at the key.
func (c *KeeperClient) CreateAlias(ctx context.Context, keyID, name string) error {
	if err := kmsDomain.ValidateAliasName(name); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.txManager.WithTx(ctx, func(ctx context.Context) error {
		key, err := c.loadKey(ctx, keyID)
		if err != nil {
			return err
		}
		if key.State == kmsDomain.KeyStateDeleted {
			return kmsDomain.ErrKeyNotEnabled
		}

		return c.repo.CreateAlias(ctx, &kmsDomain.Alias{
			Name:      name,
			KeyID:     key.ID,
			CreatedAt: c.clock.Now().UTC(),
		})
	})
}

// ListAliases lists every alias ordered by name.
func (c *KeeperClient) ListAliases(ctx context.Context) ([]kmsDomain.Alias, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	aliases, err := c.repo.ListAliases(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]kmsDomain.Alias, 0, len(aliases))
	for _, alias := range aliases {
		result = append(result, *alias)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ScheduleDeletion moves the key to PendingDeletion. The window is validated before the
// repository is touched.
func (c *KeeperClient) ScheduleDeletion(ctx context.Context, keyID string, pendingDays int) (time.Time, error) {
	if err := kmsDomain.ValidatePendingWindow(pendingDays); err != nil {
		return time.Time{}, err
	}

	var deletionDate time.Time
	err := c.updateKey(ctx, keyID, func(key *kmsDomain.MasterKey, now time.Time) error {
		var err error
		deletionDate, err = key.ScheduleDeletion(now, pendingDays)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}

	c.logger.Warn("master key scheduled for deletion",
		slog.String("key_id", keyID),
		slog.Time("deletion_date", deletionDate),
	)
	return deletionDate, nil
}

// CancelDeletion moves a key pending deletion back to Enabled.
func (c *KeeperClient) CancelDeletion(ctx context.Context, keyID string) error {
	err := c.updateKey(ctx, keyID, func(key *kmsDomain.MasterKey, now time.Time) error {
		return key.CancelDeletion(now)
	})
	if err != nil {
		return err
	}

	c.logger.Info("master key deletion cancelled", slog.String("key_id", keyID))
	return nil
}

// SetPolicy stores a JSON policy document on the key.
func (c *KeeperClient) SetPolicy(ctx context.Context, keyID, policy string) error {
	if err := validation.Validate(policy, validation.Required, appValidation.JSONDocument); err != nil {
		return fmt.Errorf("%w: %w", kmsDomain.ErrInvalidPolicy, err)
	}

	return c.updateKey(ctx, keyID, func(key *kmsDomain.MasterKey, now time.Time) error {
		key.Policy = policy
		key.UpdatedAt = now
		return nil
	})
}

// GetPolicy returns the key policy document.
func (c *KeeperClient) GetPolicy(ctx context.Context, keyID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key, err := c.loadKey(ctx, keyID)
	if err != nil {
		return "", err
	}
	return key.Policy, nil
}

// Tag merges tags into the key tags, overwriting existing values.
func (c *KeeperClient) Tag(ctx context.Context, keyID string, tags map[string]string) error {
	return c.updateKey(ctx, keyID, func(key *kmsDomain.MasterKey, now time.Time) error {
		if key.Tags == nil {
			key.Tags = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			key.Tags[k] = v
		}
		key.UpdatedAt = now
		return nil
	})
}

// ListTags returns a copy of the key tags.
func (c *KeeperClient) ListTags(ctx context.Context, keyID string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key, err := c.loadKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return copyTags(key.Tags), nil
}

// Close closes every open keeper.
func (c *KeeperClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for id, keeper := range c.keepers {
		if err := keeper.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close keeper for key %s: %w", id, err))
		}
		delete(c.keepers, id)
	}
	return errors.Join(errs...)
}

// updateKey loads the key and persists fn's changes in one transaction.
func (c *KeeperClient) updateKey(
	ctx context.Context,
	keyID string,
	fn func(key *kmsDomain.MasterKey, now time.Time) error,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.txManager.WithTx(ctx, func(ctx context.Context) error {
		key, err := c.loadKey(ctx, keyID)
		if err != nil {
			return err
		}
		if err := fn(key, c.clock.Now().UTC()); err != nil {
			return err
		}
		return c.repo.Update(ctx, key)
	})
}

// loadKey resolves aliases, fetches the key and applies an elapsed deletion date.
func (c *KeeperClient) loadKey(ctx context.Context, ref string) (*kmsDomain.MasterKey, error) {
	if err := kmsDomain.ValidateKeyID(ref); err != nil {
		return nil, err
	}

	keyID := ref
	if kmsDomain.IsAlias(ref) {
		alias, err := c.repo.GetAlias(ctx, ref)
		if err != nil {
			return nil, err
		}
		keyID = alias.KeyID
	}

	key, err := c.repo.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now().UTC()
	if key.State == kmsDomain.KeyStatePendingDeletion && key.EffectiveState(now) == kmsDomain.KeyStateDeleted {
		key.State = kmsDomain.KeyStateDeleted
		key.Enabled = false
		key.UpdatedAt = now
		if err := c.repo.Update(ctx, key); err != nil {
			return nil, err
		}
		c.closeKeeper(key.ID)
		c.logger.Warn("master key deleted",
			slog.String("key_id", key.ID),
			slog.Time("deletion_date", *key.DeletionDate),
		)
	}

	return key, nil
}

func (c *KeeperClient) keeper(ctx context.Context, key *kmsDomain.MasterKey) (Keeper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if keeper, ok := c.keepers[key.ID]; ok {
		return keeper, nil
	}

	keeper, err := c.kmsService.OpenKeeper(ctx, key.KeyURI)
	if err != nil {
		return nil, err
	}
	c.keepers[key.ID] = keeper
	return keeper, nil
}

func (c *KeeperClient) closeKeeper(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if keeper, ok := c.keepers[keyID]; ok {
		if err := keeper.Close(); err != nil {
			c.logger.Error("failed to close keeper", slog.String("key_id", keyID), slog.Any("error", err))
		}
		delete(c.keepers, keyID)
	}
}

// mapKeeperError classifies a keeper decrypt failure. Transport and server side failures
// are retryable; anything else means the ciphertext does not belong to the key.
func mapKeeperError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	}

	switch gcerrors.Code(err) {
	case gcerrors.DeadlineExceeded, gcerrors.Canceled, gcerrors.Internal, gcerrors.ResourceExhausted:
		return fmt.Errorf("%w: %w", kmsDomain.ErrKeyUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", kmsDomain.ErrUnwrapFailed, err)
	}
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// RegisterKeeperKey stores an enabled keeper master key reachable through keyURI under
// keyRef, without going through CreateKey. keyRef is either the key id or an alias. An
// alias gets a name-based UUID, so every process registering the same alias agrees on
// the id recorded in wrapped keys. It bootstraps process-local repositories, where a key
// created by another process does not exist.
func RegisterKeeperKey(
	ctx context.Context,
	repo MasterKeyRepository,
	keyRef, keyURI string,
	now time.Time,
) (*kmsDomain.MasterKey, error) {
	if err := kmsDomain.ValidateKeyID(keyRef); err != nil {
		return nil, err
	}
	if keyURI == "" {
		return nil, kmsDomain.ErrInvalidKeyURI
	}

	id := keyRef
	if kmsDomain.IsAlias(keyRef) {
		if err := kmsDomain.ValidateAliasName(keyRef); err != nil {
			return nil, err
		}
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(keyRefPrefix+keyRef)).String()
	}

	now = now.UTC()
	key := &kmsDomain.MasterKey{
		ID:          id,
		Ref:         keyRefPrefix + id,
		KeyURI:      keyURI,
		Description: "registered at startup",
		Enabled:     true,
		State:       kmsDomain.KeyStateEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(ctx, key); err != nil {
		return nil, err
	}

	if id != keyRef {
		alias := &kmsDomain.Alias{Name: keyRef, KeyID: id, CreatedAt: now}
		if err := repo.CreateAlias(ctx, alias); err != nil {
			return nil, err
		}
		key.Aliases = []string{keyRef}
	}
	return key, nil
}
