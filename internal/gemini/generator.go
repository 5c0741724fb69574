package gemini

import (
	"context"
	"errors"

	"docbridge.org/internal/convert"
)

// Generator binds a caller's API key to the shared client and adapts it
// to the conversion engine's interface.
type Generator struct {
	client *Client
	apiKey string
}

func NewGenerator(client *Client, apiKey string) *Generator {
	return &Generator{client: client, apiKey: apiKey}
}

func (g *Generator) Generate(ctx context.Context, src convert.Source, prompt string, temperature float32) (string, error) {
	text, err := g.client.GenerateContent(ctx, g.apiKey, GenerateRequest{
		FileURI:      src.URI,
		FileMIMEType: src.MIMEType,
		Prompt:       prompt,
		Temperature:  temperature,
	})
	if err != nil {
		return "", translateGenerateErr(err)
	}
	return text, nil
}

func translateGenerateErr(err error) error {
	switch {
	case errors.Is(err, ErrRecitation):
		return errors.Join(convert.ErrRefusal, err)
	case errors.Is(err, ErrUnavailable):
		return errors.Join(convert.ErrUnavailable, err)
	case errors.Is(err, ErrBadRequest):
		return errors.Join(convert.ErrUnsupported, err)
	default:
		return err
	}
}
