package oplog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingLog(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "oplog.jsonl"))
	p, err := l.Read()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBeginStagedFailed(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "oplog.jsonl"))
	planned := []PlannedFile{
		{Path: "a.env", SourceDigest: "sha256:aa", SourceVersion: 1},
		{Path: "b.env", SourceDigest: "sha256:bb", SourceVersion: 1},
	}

	require.NoError(t, l.Begin("op-1", 2, planned))
	require.NoError(t, l.Failed("op-1", "a.env", errors.New("timeout")))
	require.NoError(t, l.Staged("op-1", "a.env", "sha256:a2", "sha256:pa"))
	require.NoError(t, l.Failed("op-1", "b.env", errors.New("unauthorized")))

	p, err := l.Read()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "op-1", p.OperationID)
	assert.Equal(t, 2, p.TargetVersion)
	assert.Equal(t, planned, p.Planned)
	assert.Equal(t, "sha256:a2", p.Staged["a.env"].Digest)
	assert.NotContains(t, p.Failed, "a.env")
	assert.Equal(t, "unauthorized", p.Failed["b.env"])
}

func TestBeginReplacesPreviousOperation(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "oplog.jsonl"))
	require.NoError(t, l.Begin("op-1", 2, nil))
	require.NoError(t, l.Staged("op-1", "a.env", "sha256:a2", ""))
	require.NoError(t, l.Begin("op-2", 3, nil))

	p, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, "op-2", p.OperationID)
	assert.Empty(t, p.Staged)
}

func TestParseSkipsTornAndForeignLines(t *testing.T) {
	data := []byte(`{"kind":"begin","op":"op-1","target_version":4,"planned":[{"path":"a.env","source_digest":"sha256:aa","source_version":3}]}
{"kind":"staged","op":"op-0","path":"a.env","digest":"sha256:old"}
not json
{"kind":"staged","op":"op-1","path":"a.env","digest":"sha256:new"}
{"kind":"staged","op":"op-1","path":"b.e`)

	p := Parse(data)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.TargetVersion)
	require.Len(t, p.Staged, 1)
	assert.Equal(t, "sha256:new", p.Staged["a.env"].Digest)
}

func TestParseWithoutBegin(t *testing.T) {
	assert.Nil(t, Parse([]byte(`{"kind":"staged","op":"x","path":"a"}`+"\n")))
}

func TestPurge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oplog.jsonl")
	l := New(path)
	require.NoError(t, l.Begin("op-1", 1, nil))
	require.NoError(t, l.Purge())
	require.NoError(t, l.Purge())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
