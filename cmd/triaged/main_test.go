package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// setupEnv points the CLI at a fresh database.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TRIAGE_CONFIG", "")
	t.Setenv("TRIAGE_DB_PATH", filepath.Join(dir, "triage.db"))
	t.Setenv("TRIAGE_LOG_LEVEL", "error")
	configPath = ""
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	listLimit = 0
	evaluateFlags.input = "-"
	vignetteFlags.workers = 0

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestVersion(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "triaged dev")
}

func TestEvaluate(t *testing.T) {
	dir := setupEnv(t)
	input := writeFile(t, dir, "answers.json", `{"heavy_bleeding": true, "weeks_postpartum": 1}`)

	out, err := run(t, "evaluate", "--input", input)
	require.NoError(t, err)

	var d domain.DecisionResult
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, domain.LevelEmergency, d.Level)
	assert.Equal(t, []string{"RF_HEAVY_BLEEDING"}, d.FiredRedFlags())
}

func TestEvaluate_BadInput(t *testing.T) {
	dir := setupEnv(t)
	input := writeFile(t, dir, "answers.json", `{"heavy_bleeding": "very"}`)

	_, err := run(t, "evaluate", "--input", input)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestImportListAndVerify(t *testing.T) {
	dir := setupEnv(t)
	casesPath := writeFile(t, dir, "cases.jsonl",
		`{"case_id": "c-1", "created_at": "2025-03-01T10:00:00Z", "decision": {"level": "URGENT"}}`+"\n"+
			`{"case_id": "c-2", "created_at": "2025-03-02T10:00:00Z", "decision": {"level": "ROUTINE"}}`+"\n")
	changesPath := writeFile(t, dir, "changes.jsonl",
		`{"change_id": "ch-1", "case_id": "c-1", "timestamp": "2025-03-01T11:00:00Z", "editor": "gp", "change_type": "OUTCOME_UPDATE", "patch": {"resolved": true}}`+"\n")

	out, err := run(t, "import", "--cases", casesPath, "--changes", changesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 cases, 1 changes")

	out, err = run(t, "cases", "--limit", "1")
	require.NoError(t, err)
	var recs []domain.CaseRecord
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "c-2", recs[0].CaseID, "newest first")

	out, err = run(t, "changes")
	require.NoError(t, err)
	var events []domain.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "ch-1", events[0].ChangeID)

	out, err = run(t, "verify-ledger")
	require.NoError(t, err)
	assert.Contains(t, out, "1 entries verified")

	// A second import into a populated store is a no-op.
	out, err = run(t, "import", "--cases", casesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0 cases")
}

func TestVignettes(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "vignettes", "--file", filepath.Join("..", "..", "internal", "vignette", "testdata", "vignettes.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "6/6 passed")
	assert.Equal(t, 7, strings.Count(out, "\n"))
}

func TestToken(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "token", "--subject", "midwife")
	assert.Error(t, err, "no secret configured")

	t.Setenv("TRIAGE_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	out, err := run(t, "token", "--subject", "midwife")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)
}
