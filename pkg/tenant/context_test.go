package tenant_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/tenant"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	tc := tenant.New(orgID).WithMeta("plan", "pro")

	ctx := tenant.WithContext(context.Background(), tc)

	got, ok := tenant.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, orgID, got.OrgID)
	assert.Equal(t, "pro", got.Meta("plan"))

	id, ok := tenant.OrgIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, orgID, id)
}

func TestFromContext_Absent(t *testing.T) {
	t.Parallel()

	_, ok := tenant.FromContext(context.Background())
	assert.False(t, ok)

	_, ok = tenant.OrgIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestMustFromContext_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		tenant.MustFromContext(context.Background())
	})
}

func TestWithMeta_DoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	base := tenant.New(uuid.New())
	derived := base.WithMeta("locale", "de")

	assert.Empty(t, base.Meta("locale"))
	assert.Equal(t, "de", derived.Meta("locale"))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := tenant.LoggerExtractor()

	t.Run("with tenant", func(t *testing.T) {
		t.Parallel()

		orgID := uuid.New()
		ctx := tenant.WithContext(context.Background(), tenant.New(orgID))
		attr, ok := extract(ctx)
		require.True(t, ok)
		assert.Equal(t, "tenant_id", attr.Key)
		assert.Equal(t, orgID.String(), attr.Value.String())
	})

	t.Run("without tenant", func(t *testing.T) {
		t.Parallel()

		_, ok := extract(context.Background())
		assert.False(t, ok)
	})
}
