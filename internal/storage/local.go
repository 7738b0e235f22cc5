package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LinkPrefix is the URL path under which published artifacts are served.
const LinkPrefix = "/assets/public"

// LocalPublisher implements Publisher using a public directory on local disk.
type LocalPublisher struct {
	publicDir string
}

// Compile-time check that LocalPublisher implements Publisher.
var _ Publisher = (*LocalPublisher)(nil)

// NewLocalPublisher creates a LocalPublisher rooted at publicDir.
// If publicDir is empty, a "public" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalPublisher(publicDir string) (*LocalPublisher, error) {
	if publicDir == "" {
		publicDir = filepath.Join(os.TempDir(), "public")
	}

	if err := os.MkdirAll(publicDir, 0750); err != nil {
		return nil, fmt.Errorf("create public directory: %w", err)
	}

	abs, err := filepath.Abs(publicDir)
	if err != nil {
		return nil, fmt.Errorf("resolve public directory: %w", err)
	}

	return &LocalPublisher{publicDir: abs}, nil
}

// PublicDir returns the public directory path.
func (p *LocalPublisher) PublicDir() string {
	return p.publicDir
}

// Publish copies srcPath into the public directory under a temporary name and
// renames it into place, so readers never observe a partially written file.
// The published name is <base>_<suffix>_<unique>.mov.
func (p *LocalPublisher) Publish(ctx context.Context, srcPath, base, suffix string) (Artifact, error) {
	select {
	case <-ctx.Done():
		return Artifact{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	name := publishedName(base, suffix)
	dst := filepath.Join(p.publicDir, name)

	src, err := os.Open(srcPath) // #nosec G304 - path comes from the job workspace
	if err != nil {
		return Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = src.Close() }()

	// Stage in the public directory so the final rename never crosses a
	// filesystem boundary.
	tmp, err := os.CreateTemp(p.publicDir, ".staging_*")
	if err != nil {
		return Artifact{}, fmt.Errorf("create staging file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("stage artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("close staging file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("publish artifact: %w", err)
	}

	return Artifact{
		Name:         name,
		Link:         LinkPrefix + "/" + name,
		AbsolutePath: dst,
	}, nil
}

// publishedName builds <base>_<suffix>_<unique>.mov from the input file base
// name and the effect suffix.
func publishedName(base, suffix string) string {
	base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	if base == "" || base == "." {
		base = "output"
	}

	unique := make([]byte, 4)
	if _, err := rand.Read(unique); err != nil {
		return fmt.Sprintf("%s_%s.mov", base, suffix)
	}
	return fmt.Sprintf("%s_%s_%s.mov", base, suffix, hex.EncodeToString(unique))
}
