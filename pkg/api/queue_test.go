package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueType_Path(t *testing.T) {
	cases := map[QueueType]string{
		"":           "_queue/task",
		QueueDefault: "_queue/task",
		QueueSession: "_sessionQueue/task",
		QueueFast:    "_fastQueue/task",
	}
	for qt, want := range cases {
		require.NoError(t, qt.Validate())
		assert.Equal(t, want, qt.Path(), "queue %q", string(qt))
	}
}

func TestQueueType_Invalid(t *testing.T) {
	for _, s := range []string{"slow", "Default", " fast", "_queue"} {
		_, err := ParseQueueType(s)
		require.ErrorIs(t, err, ErrInvalidQueueType, s)
		require.ErrorIs(t, QueueType(s).Validate(), ErrInvalidQueueType)
		assert.Panics(t, func() { _ = QueueType(s).Path() })
	}
}

func TestParseQueueType_EmptyIsDefault(t *testing.T) {
	qt, err := ParseQueueType("")
	require.NoError(t, err)
	assert.Equal(t, QueueDefault, qt)
	assert.Equal(t, "default", QueueType("").String())
}
