// Package analysis turns emergency photos into triage analyses using a
// generative model. Provider failures never reach callers; they get a
// degraded analysis instead.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jwalitptl/dispatch-api/pkg/circuitbreaker"
)

var (
	ErrProviderStatus = errors.New("ai provider returned an error status")
	ErrEmptyResponse  = errors.New("ai provider returned no text")
	ErrMalformedReply = errors.New("ai reply is not valid analysis json")
)

const defaultMimeType = "image/jpeg"

// Image is an uploaded photo.
type Image struct {
	Data     []byte
	MimeType string
	FileName string
}

// Hash is the hex SHA-256 of the image bytes.
func (i *Image) Hash() string {
	sum := sha256.Sum256(i.Data)
	return hex.EncodeToString(sum[:])
}

func (i *Image) mimeType() string {
	if i.MimeType == "" {
		return defaultMimeType
	}
	return i.MimeType
}

func (i *Image) base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Provider sends one prompt, optionally with an image, and returns the
// model's text reply.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, img *Image) (string, error)
}

type breakerProvider struct {
	Provider
	cb *circuitbreaker.CircuitBreaker
}

// WithCircuitBreaker stops calling p after repeated failures until the
// breaker's timeout has passed.
func WithCircuitBreaker(p Provider, settings circuitbreaker.Settings) Provider {
	if settings.Name == "" {
		settings.Name = p.Name()
	}
	return &breakerProvider{Provider: p, cb: circuitbreaker.NewCircuitBreaker(settings)}
}

func (b *breakerProvider) Generate(ctx context.Context, prompt string, img *Image) (string, error) {
	var text string
	err := b.cb.Execute(func() error {
		var err error
		text, err = b.Provider.Generate(ctx, prompt, img)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.Name(), err)
	}
	return text, nil
}
