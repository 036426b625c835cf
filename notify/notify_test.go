package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/logging"
)

func TestInMemory(t *testing.T) {
	n := NewInMemory()
	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, core.Notification{RecipientID: "u1", Type: TypePipelineCompleted, Title: core.Localized{TR: "Tamamlandı", EN: "Completed"}}))
	require.NoError(t, n.Notify(ctx, core.Notification{RecipientID: "u2", Type: TypePipelineFailed}))

	assert.Len(t, n.Sent(), 2)
	got := n.For("u1")
	require.Len(t, got, 1)
	assert.Equal(t, "Completed", got[0].Title.Get("en"))
}

func TestLog(t *testing.T) {
	assert.NoError(t, NewLog(logging.NoOpLogger{}, "en").Notify(context.Background(), core.Notification{RecipientID: "u1"}))
}
