package ocr_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"pita/internal/ocr"
)

// fakeRunner mimics ocrmypdf: it writes the sidecar and the output PDF.
type fakeRunner struct {
	sidecar string
	err     error
	args    []string
	wait    bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.args = args
	if f.wait {
		<-ctx.Done()
		return nil, []byte("killed"), ctx.Err()
	}
	if f.err != nil {
		return nil, []byte("tesseract: error"), f.err
	}
	for i, a := range args {
		if a == "--sidecar" {
			if err := os.WriteFile(args[i+1], []byte(f.sidecar), 0o644); err != nil {
				return nil, nil, err
			}
		}
	}
	out := args[len(args)-1]
	return nil, nil, os.WriteFile(out, []byte("%PDF-1.7 searchable"), 0o644)
}

func request(t *testing.T) ocr.Request {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "A_merged.pdf")
	if err := os.WriteFile(in, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return ocr.Request{InputPath: in, OutputPath: filepath.Join(dir, "A_OCR.pdf")}
}

func TestExecServiceProcess(t *testing.T) {
	runner := &fakeRunner{sidecar: "CARTA DE SOLICITUD\fESTUDIO DE TÍTULO\f"}
	svc := ocr.NewExecServiceWithRunner("ocrmypdf", runner)
	req := request(t)

	res, err := svc.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.PageCount != 2 || res.Pages[0] != "CARTA DE SOLICITUD" {
		t.Errorf("pages = %q", res.Pages)
	}
	if runner.args[0] != "-l" || runner.args[1] != ocr.DefaultLanguages {
		t.Errorf("args = %v", runner.args)
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		t.Errorf("output missing")
	}
	if _, err := os.Stat(req.OutputPath + ".sidecar.txt"); !os.IsNotExist(err) {
		t.Errorf("sidecar left behind")
	}
}

func TestExecServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing binary", exec.ErrNotFound, ocr.ErrUnavailable},
		{"bad exit", errors.New("exit status 2"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := ocr.NewExecServiceWithRunner("ocrmypdf", &fakeRunner{err: tt.err})
			_, err := svc.Process(context.Background(), request(t))
			if err == nil {
				t.Fatal("expected error")
			}
			var ocrErr *ocr.OCRError
			if !errors.As(err, &ocrErr) {
				t.Errorf("not an OCRError: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.want != nil && !ocr.Retryable(err) {
				t.Errorf("not retryable")
			}
		})
	}
}

func TestTimeoutIsRetryable(t *testing.T) {
	svc := ocr.WithTimeout(ocr.NewExecServiceWithRunner("ocrmypdf", &fakeRunner{wait: true}), 10*time.Millisecond)
	_, err := svc.Process(context.Background(), request(t))
	if !errors.Is(err, ocr.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !ocr.Retryable(err) {
		t.Errorf("timeout not retryable")
	}
}

func TestMissingInput(t *testing.T) {
	svc := ocr.NewExecServiceWithRunner("ocrmypdf", &fakeRunner{})
	_, err := svc.Process(context.Background(), ocr.Request{
		InputPath:  filepath.Join(t.TempDir(), "absent.pdf"),
		OutputPath: filepath.Join(t.TempDir(), "out.pdf"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A_OCR.txt")
	if err := ocr.WriteSidecar(path, []string{"uno", "", "tres"}); err != nil {
		t.Fatal(err)
	}
	pages, err := ocr.ReadSidecar(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 3 || pages[1] != "" || pages[2] != "tres" {
		t.Errorf("pages = %q", pages)
	}
}

func TestNewUnknownEngine(t *testing.T) {
	if _, err := ocr.New(context.Background(), ocr.Options{Engine: "abbyy"}); !errors.Is(err, ocr.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
