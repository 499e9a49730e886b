package client

import (
	"context"

	"github.com/DANIELAGORA/leiberluna/message"
)

// Do sends one of the closed request variants and decodes the result into out.
func (c *Client) Do(ctx context.Context, req message.Request, out any) error {
	return c.Call(ctx, req.Method(), req, out)
}

func (c *Client) Generate(ctx context.Context, req *message.GenerateRequest) (string, error) {
	var text string
	if err := c.Do(ctx, req, &text); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) AnalyzeDocument(ctx context.Context, req *message.AnalyzeDocumentRequest) (*message.AnalysisResult, error) {
	var res message.AnalysisResult
	if err := c.Do(ctx, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GenerateDocument(ctx context.Context, req *message.GenerateDocumentRequest) (string, error) {
	var text string
	if err := c.Do(ctx, req, &text); err != nil {
		return "", err
	}
	return text, nil
}

// ListCapabilities asks the server directly, bypassing the cached registry.
func (c *Client) ListCapabilities(ctx context.Context) ([]message.Capability, error) {
	var caps []message.Capability
	if err := c.Do(ctx, &message.ListCapabilitiesRequest{}, &caps); err != nil {
		return nil, err
	}
	return caps, nil
}
