// Package docgen talks to the document generation service that renders CCBs
// and merges instrument PDFs into booklets.
package docgen

import (
	"context"
	"errors"
	"net/http"

	"loan-proposal-service/internal/domain/ports"
	"loan-proposal-service/internal/infrastructure/httpclient"
)

var errNoPath = errors.New("document service returned no path")

type Client struct {
	http *httpclient.Client
}

var _ ports.DocumentGenerator = (*Client)(nil)

func New(baseURL, token string, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithToken(token)}, opts...)
	return &Client{http: httpclient.New(baseURL, "loan-proposal-service/docgen", opts...)}
}

type pathResponse struct {
	Path string `json:"path"`
}

func (c *Client) GenerateCCB(ctx context.Context, snap ports.ProposalSnapshot) (string, error) {
	var out pathResponse
	if err := c.http.Do(ctx, http.MethodPost, "/v1/documents/ccb", snap, &out); err != nil {
		return "", err
	}
	if out.Path == "" {
		return "", errNoPath
	}
	return out.Path, nil
}

type mergeRequest struct {
	ProposalID string   `json:"proposal_id"`
	Sources    []string `json:"sources"`
	Target     string   `json:"target"`
}

func (c *Client) MergeBooklet(ctx context.Context, proposalID string, sources []string, target string) (string, error) {
	var out pathResponse
	req := mergeRequest{ProposalID: proposalID, Sources: sources, Target: target}
	if err := c.http.Do(ctx, http.MethodPost, "/v1/documents/merge", req, &out); err != nil {
		return "", err
	}
	if out.Path == "" {
		return target, nil
	}
	return out.Path, nil
}
