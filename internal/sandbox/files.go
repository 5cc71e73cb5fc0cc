package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Ownership applied to uploaded entries: the sandbox images run as uid 1000.
const (
	sandboxUID = 1000
	sandboxGID = 1000
)

// ResolvePath makes p absolute, treating relative paths as relative to
// the sandbox working directory.
func ResolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return Workdir
	}
	if !path.IsAbs(p) {
		p = path.Join(Workdir, p)
	}
	return path.Clean(p)
}

// WriteFile writes content to p inside the sandbox, creating parent
// directories as needed.
func (m *Manager) WriteFile(ctx context.Context, id, p string, content []byte) error {
	if strings.HasSuffix(strings.TrimSpace(p), "/") {
		return Invalid("path %q names a directory", p)
	}
	p = ResolvePath(p)
	dir, name := path.Split(p)
	dir = path.Clean(dir)
	if name == "" {
		return Invalid("path %q names a directory", p)
	}

	if dir != "/" {
		if err := m.MkdirAll(ctx, id, dir); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(len(content)),
		Mode:     0o666,
		Uid:      sandboxUID,
		Gid:      sandboxGID,
		ModTime:  m.now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", p, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("writing tar content for %s: %w", p, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar for %s: %w", p, err)
	}

	if err := m.engine.CopyArchive(ctx, id, dir, &buf); err != nil {
		return m.fileError("write_file", id, fmt.Sprintf("failed to write file %s", p), err)
	}
	m.activity.Touch(id, m.now())
	return nil
}

// MkdirAll creates p and any missing parents inside the sandbox. The root
// path is a no-op.
func (m *Manager) MkdirAll(ctx context.Context, id, p string) error {
	p = ResolvePath(p)
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return nil
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	current := ""
	for _, part := range parts {
		current = path.Join(current, part)
		hdr := &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     current + "/",
			Mode:     0o777,
			Uid:      sandboxUID,
			Gid:      sandboxGID,
			ModTime:  m.now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", current, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar for %s: %w", p, err)
	}

	if err := m.engine.CopyArchive(ctx, id, "/", &buf); err != nil {
		return m.fileError("mkdir", id, fmt.Sprintf("failed to create directory %s", p), err)
	}
	m.activity.Touch(id, m.now())
	return nil
}

// ReadFile returns the content of p. The runtime has no single-file
// download, so the file is base64-encoded by a shell inside the sandbox.
func (m *Manager) ReadFile(ctx context.Context, id, p string) ([]byte, error) {
	p = ResolvePath(p)
	// The path is passed as $1 so it is never parsed by the shell.
	res, err := m.Execute(ctx, id, []string{"sh", "-c", `base64 "$1"`, "base64", p}, 0)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, newError(KindNotFound, "read_file", fmt.Sprintf("file not found: %s", p), nil,
			"Check the path with dotnet_list_files")
	}

	encoded := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, res.Stdout)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, newError(KindExecution, "read_file", fmt.Sprintf("decoding %s", p), err)
	}
	return data, nil
}

// FileExists reports whether p is a regular file inside the sandbox.
func (m *Manager) FileExists(ctx context.Context, id, p string) (bool, error) {
	res, err := m.Execute(ctx, id, []string{"test", "-f", ResolvePath(p)}, 0)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// ListFiles lists the entries of directory p. A missing directory yields
// an empty list, the same as an empty one.
func (m *Manager) ListFiles(ctx context.Context, id, p string) ([]string, error) {
	res, err := m.Execute(ctx, id, []string{"ls", "-1", ResolvePath(p)}, 0)
	if err != nil {
		return nil, err
	}
	files := []string{}
	if res.ExitCode != 0 {
		return files, nil
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (m *Manager) fileError(op, id, msg string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return notFound(id, err)
	}
	return classify(op, msg, err)
}
