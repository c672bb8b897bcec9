package memory

import (
	"context"
	"testing"

	"panicdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingAlertRepository_CopiesOnSaveAndLoad(t *testing.T) {
	repo := NewPendingAlertRepository()
	ctx := context.Background()

	alerts := []models.PendingAlert{{AlertID: "a"}, {AlertID: "b"}}
	require.NoError(t, repo.Save(ctx, alerts))
	alerts[0].AlertID = "mutated"

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{loaded[0].AlertID, loaded[1].AlertID})

	loaded[1].AlertID = "mutated"
	again, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", again[1].AlertID)
}

func TestPendingAlertRepository_EmptyLoad(t *testing.T) {
	loaded, err := NewPendingAlertRepository().Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}
