package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/middleware"
	"github.com/san-kum/probowler/server/store"
)

// setupEnv points the store and log output into a temp dir and returns the dir.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_PATH", filepath.Join(dir, "reports.db"))
	t.Setenv("LOG_OUTPUT", filepath.Join(dir, "probowler.log"))
	t.Setenv("ANALYSIS_DOMINANT_SIDE", "right")
	return dir
}

func run(t *testing.T, out *bytes.Buffer, args ...string) error {
	t.Helper()
	app := newApp()
	app.Writer = out
	app.ErrWriter = out
	return app.Run(append([]string{"probowler", "--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestAnalyzeCommand(t *testing.T) {
	dir := setupEnv(t)
	output := filepath.Join(dir, "full.csv")
	comparison := filepath.Join(dir, "comparison.csv")

	var out bytes.Buffer
	err := run(t, &out, "analyze",
		"--input", filepath.Join("testdata", "trial.csv"),
		"--output", output,
		"--comparison", comparison,
		"--trial-id", "cli-trial",
		"--save")
	require.NoError(t, err)

	full := readRecords(t, output)
	require.NotEmpty(t, full)
	assert.Equal(t, []string{"Feature", "Average", "Min", "Max", "Frames", "Measurement_Phase", "FFC_Frame", "Release_Frame"}, full[0])
	assert.Greater(t, len(full), 1)
	for _, rec := range full[1:] {
		assert.Equal(t, "5", rec[6], "FFC frame for %s", rec[0])
	}

	reduced := readRecords(t, comparison)
	require.NotEmpty(t, reduced)
	assert.Equal(t, []string{"Feature", "Average", "Min", "Max", "Frames"}, reduced[0])
	assert.Len(t, reduced, len(full))

	db, err := store.New(os.Getenv("STORE_PATH"))
	require.NoError(t, err)
	defer db.Close()

	count, err := db.Reports().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := db.Reports().List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cli-trial", records[0].TrialID)
	assert.Equal(t, store.SourceCLI, records[0].Source)
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	dir := setupEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing input flag",
			args: []string{"analyze"},
			want: "input",
		},
		{
			name: "input does not exist",
			args: []string{"analyze", "--input", filepath.Join(dir, "nope.csv"), "--output", filepath.Join(dir, "out.csv")},
			want: "nope.csv",
		},
		{
			name: "unknown side",
			args: []string{"analyze", "--input", filepath.Join("testdata", "trial.csv"), "--output", filepath.Join(dir, "out.csv"), "--side", "middle"},
			want: "middle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(t, &out, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	var out bytes.Buffer
	require.NoError(t, run(t, &out, "token", "--subject", "coach", "--ttl", "1h"))

	token := strings.TrimSpace(out.String())
	claims, err := middleware.NewAuthMiddleware("test-secret", zap.NewNop()).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "coach", claims.Subject)
	assert.Equal(t, middleware.RoleAdmin, claims.Role)

	_, err = middleware.NewAuthMiddleware("other-secret", zap.NewNop()).ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	setupEnv(t)
	t.Setenv("JWT_SECRET_KEY", "")

	var out bytes.Buffer
	err := run(t, &out, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
}
