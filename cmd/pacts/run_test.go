package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacts/internal/agents"
	"pacts/internal/types"
)

func writeReq(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "req.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadInputsLegacyLines(t *testing.T) {
	flagURL = ""
	path := writeReq(t, `app.test/login
# login flow
Username | fill | alice
Log in | click
`)
	inputs, err := loadInputs(path)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "https://app.test/login", inputs[0].url)
	lines := inputs[0].ctx[agents.CtxRawSteps].([]string)
	assert.Equal(t, []string{"Username | fill | alice", "Log in | click"}, lines)
}

func TestLoadInputsURLThenSuiteBlock(t *testing.T) {
	flagURL = ""
	path := writeReq(t, `https://app.test
{"testcases":[{"id":"login","steps":[{"target":"Log in","action":"click"}],
  "data":[{"user":"alice"},{"user":"bob"}]}]}
`)
	inputs, err := loadInputs(path)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "https://app.test", inputs[0].url)
	assert.Equal(t, "login", inputs[0].name)
	assert.Equal(t, "login[1]", inputs[1].name)
	row := inputs[1].ctx[agents.CtxDataRow].(map[string]string)
	assert.Equal(t, "bob", row["user"])
}

func TestLoadInputsBareSuiteNeedsURL(t *testing.T) {
	flagURL = ""
	path := writeReq(t, `{"testcases":[{"id":"t","steps":[{"target":"X","action":"click"}]}]}`)
	_, err := loadInputs(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url")

	flagURL = "https://app.test"
	defer func() { flagURL = "" }()
	inputs, err := loadInputs(path)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "https://app.test", inputs[0].url)
}

func TestLoadInputsRejectsEmptyFile(t *testing.T) {
	flagURL = ""
	_, err := loadInputs(writeReq(t, "\n\n"))
	assert.Error(t, err)

	_, err = loadInputs(writeReq(t, "https://app.test\n"))
	assert.Error(t, err)
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		verdict types.Verdict
		code    int
	}{
		{types.VerdictPass, 0},
		{types.VerdictHealed, 0},
		{types.VerdictFail, 1},
		{types.VerdictBlocked, 1},
		{types.VerdictError, 2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, codeFor(tc.verdict), string(tc.verdict))
	}
	assert.Greater(t, severity(types.VerdictError), severity(types.VerdictFail))
	assert.Greater(t, severity(types.VerdictFail), severity(types.VerdictHealed))
}
