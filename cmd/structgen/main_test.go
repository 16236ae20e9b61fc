package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/structgen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		var stdout, stderr bytes.Buffer
		assert.Equal(t, 0, runHealthCheck([]string{"--addr", srv.URL}, &stdout, &stderr))
		assert.Equal(t, "OK\n", stdout.String())
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, runHealthCheck([]string{"--addr", srv.URL}, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "status 503")
	})

	t.Run("bad flag", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 2, runHealthCheck([]string{"--nope"}, &stdout, &stderr))
	})
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "structgen "+Version)
	assert.Contains(t, buf.String(), "Git Commit: "+GitCommit)
}

func TestLoadConfig(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "STRUCTGEN_LLM_API_KEY", "OPENAI_MODEL", "STRUCTGEN_LLM_MODEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	t.Run("missing api key is fatal", func(t *testing.T) {
		_, err := loadConfig("", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrMissingAPIKey)
	})

	t.Run("dotenv supplies api key", func(t *testing.T) {
		dir := t.TempDir()
		envFile := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("OPENAI_API_KEY=sk-from-dotenv\nOPENAI_MODEL=gpt-4o-mini\n"), 0o600))
		t.Cleanup(func() {
			os.Unsetenv("OPENAI_API_KEY")
			os.Unsetenv("OPENAI_MODEL")
		})

		cfg, err := loadConfig("", envFile)
		require.NoError(t, err)
		assert.Equal(t, "sk-from-dotenv", cfg.LLM.APIKey)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	})
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger := initLogger(config.LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stderr"}})
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(-1))
	}

	// 无效级别回退到 info
	logger := initLogger(config.LogConfig{Level: "loud", Format: "json"})
	assert.False(t, logger.Core().Enabled(-1))
}
