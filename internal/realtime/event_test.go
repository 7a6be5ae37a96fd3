package realtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	for _, name := range []string{"projects", "clients", "files"} {
		topic, err := ParseTopic(name)
		require.NoError(t, err)
		assert.Equal(t, name, topic.String())
	}
	_, err := ParseTopic("invoices")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTopic))
}

func TestEncodeOmitsEmptyEntity(t *testing.T) {
	data, err := NewInvalidate(TopicProjects, "org_1", "").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"projects","organizationId":"org_1","action":"invalidate"}`, string(data))

	data, err = NewInvalidate(TopicFiles, "org_1", "f_9").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"files","organizationId":"org_1","action":"invalidate","entityId":"f_9"}`, string(data))
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"topic":`,
		"unknown topic": `{"topic":"invoices","organizationId":"o","action":"invalidate"}`,
		"no org":        `{"topic":"files","action":"invalidate"}`,
		"bad action":    `{"topic":"files","organizationId":"o","action":"delete"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.Error(t, err)
		})
	}

	e, err := Decode([]byte(`{"topic":"clients","organizationId":"o","action":"invalidate","entityId":"c"}`))
	require.NoError(t, err)
	assert.Equal(t, NewInvalidate(TopicClients, "o", "c"), e)
}
