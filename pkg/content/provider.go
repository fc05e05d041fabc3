// Package content supplies the files served under the app scheme.
package content

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"
)

// Provider looks up static content by request path. Implementations must be
// safe for concurrent Open calls.
type Provider interface {
	Open(ctx context.Context, name string) (*File, error)
}

// File is an open content file. Callers must Close it.
type File struct {
	// Name is the slash-separated path relative to the provider root.
	Name string
	// Size is the decoded length, or -1 when the file is decoded on the fly.
	Size    int64
	ModTime time.Time
	// Encoding names the precompressed sibling the body was decoded from, if any.
	Encoding string

	body io.ReadCloser
}

func (f *File) Read(p []byte) (int, error) {
	return f.body.Read(p)
}

func (f *File) Close() error {
	if f == nil || f.body == nil {
		return nil
	}

	return f.body.Close()
}

// NewFile wraps an already open body.
func NewFile(name string, size int64, modTime time.Time, body io.ReadCloser) *File {
	return &File{Name: name, Size: size, ModTime: modTime, body: body}
}

// DirProvider serves files from a directory on disk.
type DirProvider struct {
	guard *Guard
}

// NewDirProvider returns a provider rooted at root, which must exist.
func NewDirProvider(root string) (*DirProvider, error) {
	guard, err := NewGuard(root)
	if err != nil {
		return nil, err
	}

	return &DirProvider{guard: guard}, nil
}

// Root returns the canonical directory served by p.
func (p *DirProvider) Root() string {
	return p.guard.Root()
}

func (p *DirProvider) Open(ctx context.Context, name string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := p.guard.ResolvePath(name)
	if err != nil {
		return nil, err
	}

	rel := p.guard.RelPath(resolved)
	return openWithSiblings(rel, func(suffix string) (fs.File, error) {
		target := resolved + suffix
		if suffix != "" {
			if err := p.guard.EnsureContained(target); err != nil {
				return nil, err
			}
		}
		return os.Open(target)
	})
}

// FSProvider serves files from an fs.FS such as an embedded bundle.
type FSProvider struct {
	fsys fs.FS
}

func NewFSProvider(fsys fs.FS) *FSProvider {
	return &FSProvider{fsys: fsys}
}

func (p *FSProvider) Open(ctx context.Context, name string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimLeft(strings.TrimSpace(name), "/")
	if trimmed == "" || !fs.ValidPath(trimmed) {
		return nil, NewError(ErrorInvalidPath, "path is not a valid content path")
	}

	return openWithSiblings(path.Clean(trimmed), func(suffix string) (fs.File, error) {
		return p.fsys.Open(trimmed + suffix)
	})
}

// Overlay tries each provider in order. A miss falls through to the next
// provider; any other error stops the lookup.
type Overlay []Provider

func (o Overlay) Open(ctx context.Context, name string) (*File, error) {
	for _, provider := range o {
		if provider == nil {
			continue
		}

		file, err := provider.Open(ctx, name)
		if err == nil {
			return file, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}

	return nil, NewError(ErrorNotFound, "file does not exist")
}

// openWithSiblings opens name itself, or falls back to a precompressed
// sibling. open receives the suffix to append ("" for the file itself).
func openWithSiblings(name string, open func(suffix string) (fs.File, error)) (*File, error) {
	file, err := openRegular(name, "", open)
	if err == nil || !IsNotFound(err) {
		return file, err
	}

	for _, sibling := range precompressed {
		file, siblingErr := openRegular(name, sibling.suffix, open)
		if siblingErr != nil {
			if IsNotFound(siblingErr) {
				continue
			}
			return nil, siblingErr
		}

		decoded, decodeErr := sibling.decode(file.body)
		if decodeErr != nil {
			_ = file.Close()
			return nil, NewError(ErrorIO, "decode "+sibling.encoding+" sibling: "+decodeErr.Error())
		}

		file.Size = -1
		file.Encoding = sibling.encoding
		file.body = decoded
		return file, nil
	}

	return nil, err
}

func openRegular(name string, suffix string, open func(string) (fs.File, error)) (*File, error) {
	handle, err := open(suffix)
	if err != nil {
		return nil, NormalizeIOError(err, "open file")
	}

	info, err := handle.Stat()
	if err != nil {
		_ = handle.Close()
		return nil, NormalizeIOError(err, "stat file")
	}
	if info.IsDir() {
		_ = handle.Close()
		return nil, NewError(ErrorNotFound, "path is a directory")
	}

	return NewFile(name, info.Size(), info.ModTime(), handle), nil
}
