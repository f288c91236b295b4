package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithoutURIIsNoop(t *testing.T) {
	a, err := Open(context.Background(), "", "signals_archive")
	require.NoError(t, err)
	assert.IsType(t, Noop{}, a)

	assert.NoError(t, a.Record(context.Background(), Alert{Symbol: "BTCUSDT"}))
	recent, err := a.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.Equal(t, false, a.Status()["configured"])
	assert.NoError(t, a.Close(context.Background()))
}

func TestOpenRejectsBadURI(t *testing.T) {
	_, err := Open(context.Background(), "not-a-mongo-uri", "signals_archive")
	assert.Error(t, err)
}
