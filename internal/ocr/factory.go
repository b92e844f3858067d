package ocr

import (
	"context"
	"fmt"
	"time"
)

// Options select and configure an engine.
type Options struct {
	Engine     string // ocrmypdf, vision, documentai, textlayer
	Command    string
	Timeout    time.Duration
	DocumentAI DocumentAIConfig
}

// New builds the Service named by opts.Engine, bounded by opts.Timeout.
func New(ctx context.Context, opts Options) (Service, error) {
	var svc Service
	switch opts.Engine {
	case "", "ocrmypdf":
		cmd := opts.Command
		if cmd == "" {
			cmd = "ocrmypdf"
		}
		svc = NewExecService(cmd)
	case "vision":
		v, err := NewVisionService(ctx)
		if err != nil {
			return nil, err
		}
		svc = v
	case "documentai":
		d, err := NewDocumentAIService(ctx, opts.DocumentAI)
		if err != nil {
			return nil, err
		}
		svc = d
	case "textlayer":
		svc = NewTextLayerService()
	default:
		return nil, NewOCRError("New", ErrUnavailable, fmt.Sprintf("unknown engine %q", opts.Engine))
	}
	return WithTimeout(svc, opts.Timeout), nil
}

// WithTimeout bounds every Process call of svc. A zero timeout returns svc.
func WithTimeout(svc Service, timeout time.Duration) Service {
	if timeout <= 0 {
		return svc
	}
	return &timeoutService{inner: svc, timeout: timeout}
}

type timeoutService struct {
	inner   Service
	timeout time.Duration
}

func (t *timeoutService) Process(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	res, err := t.inner.Process(ctx, req)
	if err != nil {
		return nil, WrapOCRError("Process", err, "")
	}
	return res, nil
}

// Close releases clients held by svc, if any.
func Close(svc Service) error {
	if t, ok := svc.(*timeoutService); ok {
		svc = t.inner
	}
	if c, ok := svc.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
