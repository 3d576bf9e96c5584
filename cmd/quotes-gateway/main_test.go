package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigUsesGatewayKafkaIdentity(t *testing.T) {
	for _, key := range []string{"KAFKA_CLIENT_ID", "KAFKA_CONSUMER_GROUP"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "quotes-gateway", cfg.KafkaClientID)
	assert.Equal(t, "quotes-gateway", cfg.KafkaConsumerGroup)
}

func TestLoadConfigKeepsExplicitKafkaIdentity(t *testing.T) {
	t.Setenv("KAFKA_CLIENT_ID", "gw-1")
	t.Setenv("KAFKA_CONSUMER_GROUP", "boards")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "gw-1", cfg.KafkaClientID)
	assert.Equal(t, "boards", cfg.KafkaConsumerGroup)
}
