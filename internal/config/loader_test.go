package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigs 在临时工作目录下布置配置文件
func writeConfigs(t *testing.T, base string, env string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte(base), 0o644))
	if env != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.development.yaml"), []byte(env), 0o644))
	}
	t.Chdir(dir)
}

func TestLoadDefaults(t *testing.T) {
	writeConfigs(t, "app:\n  name: evocode-datagen\n", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "evocode-datagen", cfg.App.Name)
	assert.Equal(t, 10, cfg.Datagen.MaxConcurrent)
	assert.Equal(t, 50, cfg.Datagen.FlushThreshold)
	assert.Equal(t, 3, cfg.Datagen.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
}

func TestLoadEnvOverlay(t *testing.T) {
	writeConfigs(t,
		"datagen:\n  max_concurrent: 4\n  flush_threshold: 20\n",
		"datagen:\n  max_concurrent: 8\n",
	)

	cfg, err := Load()
	require.NoError(t, err)

	// 环境配置覆盖默认配置，未覆盖的保留
	assert.Equal(t, 8, cfg.Datagen.MaxConcurrent)
	assert.Equal(t, 20, cfg.Datagen.FlushThreshold)
}

func TestLoadStageConfig(t *testing.T) {
	writeConfigs(t, `
datagen:
  data_dir: /tmp/gen
  stages:
    problem:
      num_samples: 100
      temperature: 1.0
      output_dir: problem
    skeleton:
      input_file: problem/results.jsonl
      prompts:
        template: "P: {{problem}}"
`, "")

	cfg, err := Load()
	require.NoError(t, err)

	problem, ok := cfg.Datagen.Stage("problem")
	require.True(t, ok)
	assert.Equal(t, 100, problem.NumSamples)
	assert.Equal(t, 1.0, problem.Temperature)

	skeleton, ok := cfg.Datagen.Stage("skeleton")
	require.True(t, ok)
	assert.Equal(t, "problem/results.jsonl", skeleton.InputFile)
	assert.Equal(t, "P: {{problem}}", skeleton.Prompts["template"])

	_, ok = cfg.Datagen.Stage("bogus")
	assert.False(t, ok)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DATAGEN_TEST_VAR", "from-env")

	assert.Equal(t, "from-env", expandEnv("${DATAGEN_TEST_VAR}"))
	assert.Equal(t, "from-env", expandEnv("${DATAGEN_TEST_VAR:fallback}"))
	assert.Equal(t, "fallback", expandEnv("${DATAGEN_TEST_UNSET:fallback}"))
	// 无默认值且未定义时保留原样
	assert.Equal(t, "${DATAGEN_TEST_UNSET}", expandEnv("${DATAGEN_TEST_UNSET}"))
}

func TestExpandEnvInConfigFile(t *testing.T) {
	t.Setenv("DATAGEN_TEST_DIR", "/data/override")
	writeConfigs(t, "datagen:\n  data_dir: ${DATAGEN_TEST_DIR:/data/default}\n", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/override", cfg.Datagen.DataDir)
}
