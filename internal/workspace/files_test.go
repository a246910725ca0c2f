package workspace

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestSaveAttachment(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveAttachment(dir, Attachment{Name: "report.csv", Base64: b64("a,b\n1,2\n")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.csv"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(content))
}

func TestSaveAttachmentStripsTraversal(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveAttachment(dir, Attachment{Name: "../../etc/passwd", Base64: b64("owned")})
	require.NoError(t, err)
	// A crafted name is reduced to its basename inside the session dir.
	assert.Equal(t, filepath.Join(dir, "passwd"), path)
	assert.NoFileExists(t, filepath.Join(dir, "..", "..", "etc", "passwd"))
}

func TestSaveAttachmentRejectsUnusableNames(t *testing.T) {
	dir := t.TempDir()

	_, err := SaveAttachment(dir, Attachment{Name: "..", Base64: b64("x")})
	assert.Error(t, err)

	_, err = SaveAttachment(dir, Attachment{Name: "", Base64: b64("x")})
	assert.Error(t, err)

	_, err = SaveAttachment(dir, Attachment{Name: "f.txt", Base64: "not base64!!"})
	assert.Error(t, err)
}

func TestWriteCredentialFile(t *testing.T) {
	workDir := t.TempDir()

	path, err := WriteCredentialFile(workDir, "gdrive", b64(`{"token":"x"}`), "token.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, ".taskhive_credentials", "gdrive_token.json"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(CredentialsDir(workDir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestChangedFilesSince(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	// Secret material never shows up in change reports.
	credDir := CredentialsDir(dir)
	require.NoError(t, os.MkdirAll(credDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(credDir, "token"), []byte("s"), 0o600))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out", "fresh.txt"), []byte("fresh"), 0o644))

	entries := ChangedFilesSince(dir, time.Now().Add(-time.Minute))
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join("out", "fresh.txt"), entries[0].Path)
	assert.Equal(t, int64(5), entries[0].SizeBytes)
	_, err := time.Parse(time.RFC3339, entries[0].ModifiedAt)
	assert.NoError(t, err)
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/srv/data")
	assert.Equal(t, "/srv/data/projects/project_p1", l.ProjectDir("p1"))
	assert.Equal(t, "/srv/data/projects/project_p1/task_t1", l.TaskDir("p1", "t1"))
}
