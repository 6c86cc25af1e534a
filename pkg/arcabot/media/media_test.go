package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(Config{Dir: filepath.Join(t.TempDir(), "uploads"), MaxSize: 1024}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"boleto.pdf", "application/pdf"},
		{"foto.JPG", "image/jpeg"},
		{"foto.jpeg", "image/jpeg"},
		{"logo.png", "image/png"},
		{"contrato.doc", "application/msword"},
		{"contrato.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"planilha.xls", "application/vnd.ms-excel"},
		{"planilha.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"arquivo.zip", DefaultMimeType},
		{"semextensao", DefaultMimeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MimeType(tt.name); got != tt.want {
				t.Errorf("MimeType(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{MaxSize: 10}
	if err := cfg.Validate("a.pdf", 10); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := cfg.Validate("a.exe", 1); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got %v", err)
	}
	if err := cfg.Validate("a.pdf", 11); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if !IsAllowedExtension("XLSX") {
		t.Error("expected xlsx without dot to be allowed")
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ref, err := s.Save(ctx, "../../boleto.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(ref, RefPrefix) || !strings.HasSuffix(ref, ".pdf") {
		t.Errorf("unexpected ref %q", ref)
	}

	att, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(att.Data) != "%PDF-1.4" || att.MimeType != "application/pdf" {
		t.Errorf("unexpected attachment %+v", att)
	}
	if att.FileName != strings.TrimPrefix(ref, RefPrefix) {
		t.Errorf("expected file name from ref, got %q", att.FileName)
	}

	t.Run("bare name resolves", func(t *testing.T) {
		if _, err := s.Open(ctx, strings.TrimPrefix(ref, RefPrefix)); err != nil {
			t.Errorf("expected bare name to resolve, got %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := s.Open(ctx, "/uploads/nope.pdf"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.Open(ctx, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for empty ref, got %v", err)
		}
	})

	t.Run("traversal stays inside", func(t *testing.T) {
		p, err := s.Path("/uploads/../../etc/passwd")
		if err != nil {
			t.Fatalf("Path failed: %v", err)
		}
		if !strings.HasPrefix(p, s.Dir()) {
			t.Errorf("expected path inside %s, got %s", s.Dir(), p)
		}
	})

	t.Run("rejects", func(t *testing.T) {
		if _, err := s.Save(ctx, "virus.exe", []byte("x")); !errors.Is(err, ErrNotAllowed) {
			t.Errorf("expected ErrNotAllowed, got %v", err)
		}
		if _, err := s.Save(ctx, "big.png", make([]byte, 2048)); !errors.Is(err, ErrTooLarge) {
			t.Errorf("expected ErrTooLarge, got %v", err)
		}
	})

	t.Run("save file and delete", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "tabela.xlsx")
		if err := os.WriteFile(src, []byte("sheet"), 0o644); err != nil {
			t.Fatal(err)
		}
		ref, err := s.SaveFile(ctx, src)
		if err != nil {
			t.Fatalf("SaveFile failed: %v", err)
		}
		if err := s.Delete(ref); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected deleted attachment to be missing, got %v", err)
		}
		if err := s.Delete(ref); err != nil {
			t.Errorf("expected second delete to succeed, got %v", err)
		}
	})
}
