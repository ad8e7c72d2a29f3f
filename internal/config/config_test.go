package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"idsm/internal/blob"
	"idsm/internal/joblog"
	"idsm/internal/posterior"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idsm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), s)
	require.Equal(t, blob.DriverFilesystem, s.Storage.Blob.Driver)
	require.Equal(t, joblog.DriverSQLite, s.Storage.JobLog.Driver)
	formats, err := s.Batch.ArchiveFormats()
	require.NoError(t, err)
	require.Equal(t, posterior.ArchiveFormats, formats)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
model:
  multi_area: true
  shared_re: true
  telemetry: true
  telemetry_area: 2
sampler:
  iter: 200
  burnin: 50
  thin: 2
  chains: 4
storage:
  blob:
    driver: s3
    s3:
      bucket: ptarmigan
      region: eu-north-1
  joblog:
    driver: postgres
    dsn: postgres://idsm@db/idsm
batch:
  workers: 3
  formats: [draws.json, summary.csv]
simulation:
  years: 4
  sites: [3, 2]
`)
	t.Setenv("IDSM_SAMPLER_CHAINS", "2")
	t.Setenv("IDSM_MODEL_PER_FEMALE", "true")
	t.Setenv("IDSM_BLOB_S3_PREFIX", "runs/")
	t.Setenv("IDSM_JOBLOG_DSN", "postgres://override@db/idsm")
	t.Setenv("IDSM_BATCH_MAX_ATTEMPTS", "5")

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", s.LogLevel)
	require.True(t, s.Model.MultiArea)
	require.True(t, s.Model.SharedRE)
	require.True(t, s.Model.PerFemale)
	require.Equal(t, 2, s.Model.TelemetryArea)
	require.Equal(t, 200, s.Sampler.Iter)
	require.Equal(t, 50, s.Sampler.Burnin)
	require.Equal(t, 2, s.Sampler.Chains)
	require.Equal(t, "metropolis", s.Sampler.Engine)
	require.Equal(t, blob.DriverS3, s.Storage.Blob.Driver)
	require.Equal(t, "ptarmigan", s.Storage.Blob.S3.Bucket)
	require.Equal(t, "runs/", s.Storage.Blob.S3.Prefix)
	require.Equal(t, joblog.DriverPostgres, s.Storage.JobLog.Driver)
	require.Equal(t, "postgres://override@db/idsm", s.Storage.JobLog.DSN)
	require.Equal(t, 3, s.Batch.Workers)
	require.Equal(t, 5, s.Batch.MaxAttempts)
	require.Equal(t, 64, s.Batch.QueueSize)
	require.Equal(t, []int{3, 2}, s.Simulation.Sites)
	require.Equal(t, 0.2, s.Simulation.W)

	formats, err := s.Batch.ArchiveFormats()
	require.NoError(t, err)
	require.Equal(t, []posterior.Format{posterior.FormatDraws, posterior.FormatSummary}, formats)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "sampler:\n  chain: 2\n",
		"burnin too big": "sampler:\n  iter: 10\n  burnin: 10\n",
		"no workers":     "batch:\n  workers: 0\n",
		"bad format":     "batch:\n  formats: [draws.parquet]\n",
		"bad level":      "log_level: chatty\n",
		"no sites":       "simulation:\n  sites: []\n",
		"telemetry year": "model:\n  telemetry: true\nsimulation:\n  years: 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestTestRunSkipsSpecValidation(t *testing.T) {
	s, err := Load(writeConfig(t, "sampler:\n  iter: 0\n  test_run: true\n"))
	require.NoError(t, err)
	require.True(t, s.Sampler.TestRun)
}

func TestInputsFileSkipsSimulationDesign(t *testing.T) {
	s, err := Load(writeConfig(t, "batch:\n  inputs: data/bundle.json\nsimulation:\n  years: 0\n"))
	require.NoError(t, err)
	require.Equal(t, "data/bundle.json", s.Batch.Inputs)
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("IDSM_SAMPLER_CHAINS", "many")
	_, err := Load("")
	require.ErrorContains(t, err, "parse env")
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config file")
}

func TestYAMLRedactsCredentials(t *testing.T) {
	s := Default()
	s.Storage.Blob.S3.SecretAccessKey = "hunter2"
	out, err := s.YAML()
	require.NoError(t, err)
	require.NotContains(t, string(out), "hunter2")
	require.Contains(t, string(out), redacted)
	require.Equal(t, "hunter2", s.Storage.Blob.S3.SecretAccessKey)
}
