package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// TestIntegration_KeyLifecycle drives the keeper key manager through the repositories.
func TestIntegration_KeyLifecycle(t *testing.T) {
	for _, tc := range drivers {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			bg := context.Background()
			keyManager, err := ctx.container.KeyManager()
			require.NoError(t, err)

			key, err := keyManager.CreateKey(bg, kmsDomain.CreateKeyInput{
				Description: "orders",
				KeyURI:      localKeyURI(t),
				Tags:        map[string]string{"team": "orders"},
			})
			require.NoError(t, err)
			assert.Equal(t, kmsDomain.KeyStateEnabled, key.State)

			require.NoError(t, keyManager.CreateAlias(bg, key.ID, "alias/orders"))
			err = keyManager.CreateAlias(bg, key.ID, "alias/orders")
			assert.ErrorIs(t, err, kmsDomain.ErrAliasAlreadyExists)

			described, err := keyManager.DescribeKey(bg, "alias/orders")
			require.NoError(t, err)
			assert.Equal(t, key.ID, described.ID)
			assert.Equal(t, []string{"alias/orders"}, described.Aliases)

			require.NoError(t, keyManager.EnableRotation(bg, key.ID))
			enabled, err := keyManager.RotationStatus(bg, key.ID)
			require.NoError(t, err)
			assert.True(t, enabled)

			require.NoError(t, keyManager.Tag(bg, key.ID, map[string]string{"env": "test"}))
			tags, err := keyManager.ListTags(bg, key.ID)
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"team": "orders", "env": "test"}, tags)

			policy := `{"Version":"2012-10-17","Statement":[]}`
			require.NoError(t, keyManager.SetPolicy(bg, key.ID, policy))
			stored, err := keyManager.GetPolicy(bg, key.ID)
			require.NoError(t, err)
			assert.Equal(t, policy, stored)

			_, err = keyManager.ScheduleDeletion(bg, key.ID, 3)
			assert.ErrorIs(t, err, kmsDomain.ErrInvalidPendingWindow)

			deletionDate, err := keyManager.ScheduleDeletion(bg, key.ID, 7)
			require.NoError(t, err)
			assert.False(t, deletionDate.IsZero())

			pending, err := keyManager.DescribeKey(bg, key.ID)
			require.NoError(t, err)
			assert.Equal(t, kmsDomain.KeyStatePendingDeletion, pending.State)
			require.NotNil(t, pending.DeletionDate)

			require.NoError(t, keyManager.CancelDeletion(bg, key.ID))
			assert.ErrorIs(t, keyManager.CancelDeletion(bg, key.ID), kmsDomain.ErrKeyNotPendingDeletion)

			aliases, err := keyManager.ListAliases(bg)
			require.NoError(t, err)
			require.Len(t, aliases, 1)
			assert.Equal(t, "alias/orders", aliases[0].Name)
		})
	}
}
