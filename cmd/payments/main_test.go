package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const input = "type, client, tx, amount\n" +
	"deposit, 1, 1, 1.0\n" +
	"deposit, 2, 2, 2.0\n" +
	"deposit, 1, 3, 2.0\n" +
	"withdraw, 1, 4, 1.5\n" +
	"withdraw, 2, 5, 3.0\n"

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tx.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{writeInput(t, input)}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "client,available,held,total,locked\n"+
		"1,1.5000,0.0000,1.5000,false\n"+
		"2,2.0000,0.0000,2.0000,false\n", stdout.String())
	assert.Empty(t, stderr.String(), "skipped records are silent without verbose")
}

func TestRun_IgnoresUploadTimeout(t *testing.T) {
	t.Setenv("UPLOAD_TIMEOUT", "1ns")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{writeInput(t, "type,client,tx,amount\ndeposit,1,1,2.5\n")}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "client,available,held,total,locked\n1,2.5000,0.0000,2.5000,false\n", stdout.String())
}

func TestRun_LogLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{writeInput(t, input)}, &stdout, &stderr)

	require.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "run finished")
}

func TestRun_Verbose(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{writeInput(t, input), "verbose"}, &stdout, &stderr)

	require.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "line 6: withdraw,2,5:")
}

func TestRun_VerboseIsLiteral(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{writeInput(t, input), "VERBOSE"}, &stdout, &stderr)

	require.Equal(t, 0, code)
	assert.NotContains(t, stderr.String(), "line 6: withdraw")
}

func TestRun_Malformed(t *testing.T) {
	var stdout, stderr bytes.Buffer
	path := writeInput(t, "type,client,tx,amount\ndeposit,1,1,1.0\ndeposit,x,2,1.0\n")

	code := run(context.Background(), []string{path}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "line 3")
}

func TestRun_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{filepath.Join(t.TempDir(), "nope.csv")}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Equal(t, 2, run(context.Background(), []string{"a", "b", "c"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage:")
	assert.Empty(t, stdout.String())
}

func TestRun_Empty(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{writeInput(t, "")}, &stdout, &stderr)

	require.Equal(t, 0, code)
	assert.Equal(t, "client,available,held,total,locked\n", stdout.String())
}
