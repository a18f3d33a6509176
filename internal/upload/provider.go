package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Provider stores the bytes of uploaded files.
type Provider interface {
	// Name is stored on every file entry the provider writes.
	Name() string
	// Put stores the content of f and sets f.URL.
	Put(ctx context.Context, f *File, r io.Reader) error
	// Delete removes the content of f. Missing content is not an error.
	Delete(ctx context.Context, f File) error
}

// LocalProvider keeps files on an afero filesystem and serves them under
// a base URL.
type LocalProvider struct {
	fs      afero.Fs
	baseURL string
}

// NewLocalProvider returns a provider storing files at the root of fsys.
func NewLocalProvider(fsys afero.Fs, baseURL string) *LocalProvider {
	return &LocalProvider{fs: fsys, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// NewDiskProvider returns a provider storing files under dir on the OS
// filesystem.
func NewDiskProvider(dir, baseURL string) (*LocalProvider, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create %s: %w", dir, err)
	}
	return NewLocalProvider(afero.NewBasePathFs(osFs, dir), baseURL), nil
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Put(_ context.Context, f *File, r io.Reader) error {
	name := f.storageName()
	if err := afero.WriteReader(p.fs, name, r); err != nil {
		return fmt.Errorf("upload: write %s: %w", name, err)
	}
	f.URL = p.baseURL + name
	return nil
}

func (p *LocalProvider) Delete(_ context.Context, f File) error {
	name := f.storageName()
	if err := p.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload: remove %s: %w", name, err)
	}
	return nil
}

// BaseURL is the URL prefix the stored files are served under.
func (p *LocalProvider) BaseURL() string { return p.baseURL }

// FileSystem exposes the stored files for http.FileServer.
func (p *LocalProvider) FileSystem() http.FileSystem {
	return afero.NewHttpFs(p.fs)
}

// storageName is rooted so http.FileServer lookups hit the same path.
func (f File) storageName() string {
	return "/" + path.Base(f.Hash+f.Ext)
}
