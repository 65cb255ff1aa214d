package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/awnumar/memguard"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
	kmsService "github.com/allisson/fieldcrypt/internal/kms/service"
)

// RunCreateMasterKey prints a base64key:// URI holding 32 fresh random bytes, for use
// with create-key --key-uri on the keeper provider. The URI carries the key material
// itself, so it is meant for local development only.
func RunCreateMasterKey(writer io.Writer) error {
	key := make([]byte, 32)
	defer memguard.WipeBytes(key)

	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}

	_, _ = fmt.Fprintln(writer, "# Local master key for the keeper provider. Never use it in production.")
	_, _ = fmt.Fprintln(writer, "# Register it with: app create-key --key-uri \"<uri>\"")
	_, _ = fmt.Fprintf(writer, "base64key://%s\n", base64.URLEncoding.EncodeToString(key))
	return nil
}

// RunCreateKey creates a master key and prints its metadata.
func RunCreateKey(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	description, keyURI string,
	tagPairs []string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	tags, err := parseTags(tagPairs)
	if err != nil {
		return err
	}

	key, err := keyManager.CreateKey(ctx, kmsDomain.CreateKeyInput{
		Description: description,
		KeyURI:      keyURI,
		Tags:        tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	logger.Info("master key created", slog.String("key_id", key.ID))
	if format == FormatText {
		_, _ = fmt.Fprintf(writer, "Set KMS_KEY_ID=%s to encrypt with this key.\n\n", key.ID)
	}
	return outputKey(writer, key, format)
}

// RunDescribeKey prints the metadata of the key referenced by id or alias.
func RunDescribeKey(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	writer io.Writer,
	keyID, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	key, err := keyManager.DescribeKey(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to describe key: %w", err)
	}
	return outputKey(writer, key, format)
}

// RunEnableRotation turns on automatic rotation of the master key material.
func RunEnableRotation(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID string,
) error {
	if err := keyManager.EnableRotation(ctx, keyID); err != nil {
		return fmt.Errorf("failed to enable rotation: %w", err)
	}
	logger.Info("key rotation enabled", slog.String("key_id", keyID))
	_, _ = fmt.Fprintf(writer, "Automatic rotation enabled for %s\n", keyID)
	return nil
}

// RunRotationStatus prints whether automatic rotation is on.
func RunRotationStatus(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	writer io.Writer,
	keyID, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	enabled, err := keyManager.RotationStatus(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to get rotation status: %w", err)
	}
	if format == FormatJSON {
		return writeJSON(writer, map[string]any{"key_id": keyID, "rotation_enabled": enabled})
	}
	_, _ = fmt.Fprintf(writer, "Rotation enabled: %t\n", enabled)
	return nil
}

// RunCreateAlias points a new alias at the key.
func RunCreateAlias(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID, name string,
) error {
	if err := keyManager.CreateAlias(ctx, keyID, name); err != nil {
		return fmt.Errorf("failed to create alias: %w", err)
	}
	logger.Info("alias created", slog.String("key_id", keyID), slog.String("alias", name))
	_, _ = fmt.Fprintf(writer, "Alias %s now points at %s\n", name, keyID)
	return nil
}

// RunListAliases prints every alias with its target key.
func RunListAliases(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	aliases, err := keyManager.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list aliases: %w", err)
	}

	if format == FormatJSON {
		out := make([]map[string]string, 0, len(aliases))
		for _, alias := range aliases {
			out = append(out, map[string]string{"name": alias.Name, "key_id": alias.KeyID})
		}
		return writeJSON(writer, out)
	}

	if len(aliases) == 0 {
		_, _ = fmt.Fprintln(writer, "No aliases found")
		return nil
	}
	for _, alias := range aliases {
		_, _ = fmt.Fprintf(writer, "%s -> %s\n", alias.Name, alias.KeyID)
	}
	return nil
}

// RunScheduleDeletion moves the key to pending deletion after pendingDays.
func RunScheduleDeletion(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID string,
	pendingDays int,
) error {
	deletionDate, err := keyManager.ScheduleDeletion(ctx, keyID, pendingDays)
	if err != nil {
		return fmt.Errorf("failed to schedule key deletion: %w", err)
	}
	logger.Warn("key deletion scheduled",
		slog.String("key_id", keyID),
		slog.Time("deletion_date", deletionDate),
	)
	_, _ = fmt.Fprintf(writer, "Key %s will be deleted on %s\n", keyID, deletionDate.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintln(writer, "Records sealed under this key become unreadable once it is deleted.")
	return nil
}

// RunCancelDeletion moves a key pending deletion back to enabled.
func RunCancelDeletion(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID string,
) error {
	if err := keyManager.CancelDeletion(ctx, keyID); err != nil {
		return fmt.Errorf("failed to cancel key deletion: %w", err)
	}
	logger.Info("key deletion cancelled", slog.String("key_id", keyID))
	_, _ = fmt.Fprintf(writer, "Deletion of %s cancelled\n", keyID)
	return nil
}

// RunSetPolicy replaces the key policy document.
func RunSetPolicy(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID, policy string,
) error {
	if strings.TrimSpace(policy) == "" {
		return fmt.Errorf("policy must not be empty")
	}
	if err := keyManager.SetPolicy(ctx, keyID, policy); err != nil {
		return fmt.Errorf("failed to set key policy: %w", err)
	}
	logger.Info("key policy updated", slog.String("key_id", keyID))
	_, _ = fmt.Fprintf(writer, "Policy of %s updated\n", keyID)
	return nil
}

// RunGetPolicy prints the key policy document as stored.
func RunGetPolicy(ctx context.Context, keyManager kmsService.KeyManager, writer io.Writer, keyID string) error {
	policy, err := keyManager.GetPolicy(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to get key policy: %w", err)
	}
	_, _ = fmt.Fprintln(writer, policy)
	return nil
}

// RunTagKey adds or overwrites tags given as key=value pairs.
func RunTagKey(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID string,
	tagPairs []string,
) error {
	tags, err := parseTags(tagPairs)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return fmt.Errorf("at least one tag is required")
	}
	if err := keyManager.Tag(ctx, keyID, tags); err != nil {
		return fmt.Errorf("failed to tag key: %w", err)
	}
	logger.Info("key tagged", slog.String("key_id", keyID), slog.Int("tags", len(tags)))
	_, _ = fmt.Fprintf(writer, "Tagged %s with %d tag(s)\n", keyID, len(tags))
	return nil
}

// RunListTags prints the resource tags of the key.
func RunListTags(
	ctx context.Context,
	keyManager kmsService.KeyManager,
	writer io.Writer,
	keyID, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	tags, err := keyManager.ListTags(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	if format == FormatJSON {
		if tags == nil {
			tags = map[string]string{}
		}
		return writeJSON(writer, tags)
	}
	if len(tags) == 0 {
		_, _ = fmt.Fprintln(writer, "No tags found")
		return nil
	}
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		_, _ = fmt.Fprintf(writer, "%s=%s\n", k, tags[k])
	}
	return nil
}

// parseTags turns key=value pairs into a map. Empty keys are rejected.
func parseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q (expected key=value)", pair)
		}
		tags[k] = strings.TrimSpace(v)
	}
	return tags, nil
}

func outputKey(writer io.Writer, key *kmsDomain.MasterKey, format string) error {
	if format == FormatJSON {
		out := map[string]any{
			"id":               key.ID,
			"ref":              key.Ref,
			"key_uri":          key.RedactedKeyURI(),
			"description":      key.Description,
			"enabled":          key.Enabled,
			"state":            key.State,
			"rotation_enabled": key.RotationEnabled,
			"aliases":          key.Aliases,
			"tags":             key.Tags,
			"created_at":       key.CreatedAt,
		}
		if key.DeletionDate != nil {
			out["deletion_date"] = key.DeletionDate
		}
		return writeJSON(writer, out)
	}

	_, _ = fmt.Fprintf(writer, "ID:               %s\n", key.ID)
	_, _ = fmt.Fprintf(writer, "Ref:              %s\n", key.Ref)
	if key.KeyURI != "" {
		_, _ = fmt.Fprintf(writer, "Key URI:          %s\n", key.RedactedKeyURI())
	}
	_, _ = fmt.Fprintf(writer, "Description:      %s\n", key.Description)
	_, _ = fmt.Fprintf(writer, "State:            %s\n", key.State)
	_, _ = fmt.Fprintf(writer, "Rotation Enabled: %t\n", key.RotationEnabled)
	if len(key.Aliases) > 0 {
		_, _ = fmt.Fprintf(writer, "Aliases:          %s\n", strings.Join(key.Aliases, ", "))
	}
	if key.DeletionDate != nil {
		_, _ = fmt.Fprintf(writer, "Deletion Date:    %s\n", key.DeletionDate.UTC().Format(time.RFC3339))
	}
	if !key.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(writer, "Created At:       %s\n", key.CreatedAt.UTC().Format(time.RFC3339))
	}
	return nil
}
