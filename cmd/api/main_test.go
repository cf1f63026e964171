package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/aidanalabs/agenda-bot/internal/config"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

func TestBuildLLMClientRequiresAProvider(t *testing.T) {
	cfg := &appconfig.Config{}
	_, _, err := buildLLMClient(context.Background(), cfg, logging.New("error"))
	require.Error(t, err)
}

func TestBuildLLMClientGeminiOnlyUsesGeminiModel(t *testing.T) {
	cfg := &appconfig.Config{GeminiAPIKey: "fake-key", GeminiModelID: "gemini-2.5-flash"}
	client, model, err := buildLLMClient(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, "gemini-2.5-flash", model)
}
