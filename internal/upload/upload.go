// Package upload stores media files and keeps their entries in the file
// content type.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/content"
	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/restquery"
	"github.com/mickamy/contentorm/schema"
)

// File describes an uploaded file before it becomes an entry.
type File struct {
	Name            string
	AlternativeText *string
	Caption         *string
	Hash            string
	Ext             string
	Mime            string
	Size            float64 // KB
	Width           *int64
	Height          *int64
	URL             string
}

// Info holds the editable attributes of a file.
type Info struct {
	Name            *string `json:"name"`
	AlternativeText *string `json:"alternativeText"`
	Caption         *string `json:"caption"`
}

// Service uploads, describes and removes media files.
type Service struct {
	files    *content.Repository
	provider Provider
	maxSize  int64
}

// NewService returns a Service writing file entries through store. A
// maxSize of zero or less disables the size check.
func NewService(store *content.Store, provider Provider, maxSize int64) (*Service, error) {
	files, err := store.Repository(schema.FileModelUID)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return &Service{files: files, provider: provider, maxSize: maxSize}, nil
}

// Upload stores the content of r under filename and creates its entry.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader, info Info) (content.Entry, error) {
	data, err := s.read(r)
	if err != nil {
		return nil, err
	}
	f := describe(filename, data)
	if info.Name != nil && *info.Name != "" {
		f.Name = *info.Name
	}
	f.AlternativeText, f.Caption = info.AlternativeText, info.Caption

	if err := s.provider.Put(ctx, &f, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	e, err := s.files.Create(ctx, f.entry(s.provider.Name()))
	if err != nil {
		if derr := s.provider.Delete(ctx, f); derr != nil {
			zerolog.Ctx(ctx).Warn().Err(derr).Str("hash", f.Hash).Msg("orphan upload left in storage")
		}
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().Str("name", f.Name).Str("mime", f.Mime).Float64("size", f.Size).Msg("file uploaded")
	return e, nil
}

func (s *Service) read(r io.Reader) ([]byte, error) {
	if s.maxSize > 0 {
		r = io.LimitReader(r, s.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(err, http.StatusBadRequest, "could not read file")
	}
	if len(data) == 0 {
		return nil, apperr.BadRequest("Files are empty")
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, apperr.New(http.StatusRequestEntityTooLarge, "PayloadTooLargeError",
			fmt.Sprintf("File is larger than %d bytes", s.maxSize))
	}
	return data, nil
}

// describe derives the stored attributes of a file from its name and
// content.
func describe(filename string, data []byte) File {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	f := File{
		Name: base,
		Hash: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Ext:  ext,
		Mime: detectMime(ext, data),
		Size: math.Round(float64(len(data))/1000*100) / 100,
	}
	if strings.HasPrefix(f.Mime, "image/") {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			w, h := int64(cfg.Width), int64(cfg.Height)
			f.Width, f.Height = &w, &h
		}
	}
	return f
}

// detectMime sniffs the content and falls back to the extension when
// sniffing finds nothing specific.
func detectMime(ext string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" && !strings.HasPrefix(sniffed, "text/plain") {
		return sniffed
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return sniffed
}

func (f File) entry(provider string) content.Entry {
	e := content.Entry{
		"name":     f.Name,
		"hash":     f.Hash,
		"ext":      f.Ext,
		"mime":     f.Mime,
		"size":     f.Size,
		"url":      f.URL,
		"provider": provider,
	}
	if f.AlternativeText != nil {
		e["alternative_text"] = *f.AlternativeText
	}
	if f.Caption != nil {
		e["caption"] = *f.Caption
	}
	if f.Width != nil {
		e["width"], e["height"] = *f.Width, *f.Height
	}
	return e
}

func fileOf(e content.Entry) File {
	return File{
		Name: cast.ToString(e["name"]),
		Hash: cast.ToString(e["hash"]),
		Ext:  cast.ToString(e["ext"]),
		Mime: cast.ToString(e["mime"]),
		URL:  cast.ToString(e["url"]),
	}
}

// UpdateInfo changes the name, alternative text and caption of a file.
func (s *Service) UpdateInfo(ctx context.Context, id any, info Info) (content.Entry, error) {
	values := content.Entry{}
	if info.Name != nil {
		values["name"] = *info.Name
	}
	if info.AlternativeText != nil {
		values["alternative_text"] = *info.AlternativeText
	}
	if info.Caption != nil {
		values["caption"] = *info.Caption
	}
	return s.files.Update(ctx, id, values)
}

// Remove deletes the file content, its entry and every media link to it.
func (s *Service) Remove(ctx context.Context, id any) (content.Entry, error) {
	e, err := s.files.FindOne(ctx, id, []string{})
	if err != nil {
		return nil, err
	}
	deleted, err := s.files.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	// the entry is gone; content left behind only wastes storage
	if err := s.provider.Delete(ctx, fileOf(e)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("hash", cast.ToString(e["hash"])).Msg("orphan upload left in storage")
	}
	return deleted, nil
}

// Find returns the files matching params.
func (s *Service) Find(ctx context.Context, params restquery.Params) ([]content.Entry, error) {
	return s.files.Find(ctx, params, nil)
}

// Search returns the files whose text attributes match the _q of params.
func (s *Service) Search(ctx context.Context, params restquery.Params) ([]content.Entry, error) {
	return s.files.Search(ctx, params, nil)
}

// FindOne returns the file with the given id.
func (s *Service) FindOne(ctx context.Context, id any) (content.Entry, error) {
	return s.files.FindOne(ctx, id, nil)
}

// Count counts the files matching params.
func (s *Service) Count(ctx context.Context, params restquery.Params) (int64, error) {
	return s.files.Count(ctx, params)
}
