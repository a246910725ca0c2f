package workspace

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"taskhive/internal/protocol"
)

// Attachment is one uploaded file: a client-supplied name plus base64 content.
type Attachment struct {
	Name   string `json:"name"`
	Base64 string `json:"base64"`
}

// SaveAttachment decodes and writes an attachment into dir. The client name
// is reduced to its basename so a crafted name can never escape the session's
// working directory. Returns the written path.
func SaveAttachment(dir string, attach Attachment) (string, error) {
	if attach.Name == "" || attach.Base64 == "" {
		return "", fmt.Errorf("attachment needs both name and base64 content")
	}
	content, err := base64.StdEncoding.DecodeString(attach.Base64)
	if err != nil {
		return "", fmt.Errorf("decode attachment %q: %w", attach.Name, err)
	}

	safeName := filepath.Base(filepath.Clean(attach.Name))
	if safeName == "." || safeName == string(filepath.Separator) || safeName == ".." {
		return "", fmt.Errorf("attachment name %q reduces to nothing usable", attach.Name)
	}

	path := filepath.Join(dir, safeName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write attachment %s: %w", path, err)
	}
	return path, nil
}

// WriteCredentialFile decodes base64 secret material and writes it under the
// session's credentials directory as <tool>_<suffix>. The whole directory is
// removed at teardown.
func WriteCredentialFile(workDir, tool, contentBase64, suffix string) (string, error) {
	content, err := base64.StdEncoding.DecodeString(contentBase64)
	if err != nil {
		return "", fmt.Errorf("invalid base64 content for %s: %w", tool, err)
	}
	credDir := CredentialsDir(workDir)
	if err := os.MkdirAll(credDir, 0o700); err != nil {
		return "", fmt.Errorf("create credentials dir %s: %w", credDir, err)
	}
	path := filepath.Join(credDir, tool+"_"+suffix)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("write credential file %s: %w", path, err)
	}
	return path, nil
}

// ChangedFilesSince walks dir and returns entries for regular files modified
// at or after since. Used to report which files a tool call touched.
func ChangedFilesSince(dir string, since time.Time) []protocol.FileEntry {
	var entries []protocol.FileEntry
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best effort: skip unreadable entries
		}
		if d.IsDir() {
			if d.Name() == credentialsDirName {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(since) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		entries = append(entries, protocol.FileEntry{
			Path:       rel,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
		})
		return nil
	})
	return entries
}
