// Package esign creates signing envelopes at the e-signature provider.
package esign

import (
	"context"
	"errors"
	"net/http"

	"loan-proposal-service/internal/domain/ports"
	"loan-proposal-service/internal/infrastructure/httpclient"
)

type Client struct {
	http *httpclient.Client
}

var _ ports.SignatureProvider = (*Client)(nil)

func New(baseURL, token string, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithToken(token)}, opts...)
	return &Client{http: httpclient.New(baseURL, "loan-proposal-service/esign", opts...)}
}

type signer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"tax_id"`
}

type envelopeRequest struct {
	ExternalID   string   `json:"external_id"`
	DocumentPath string   `json:"document_path"`
	Signers      []signer `json:"signers"`
}

type envelopeResponse struct {
	ID      string `json:"id"`
	Signers []struct {
		URL string `json:"url"`
	} `json:"signers"`
}

func (c *Client) CreateEnvelope(ctx context.Context, req ports.EnvelopeRequest) (ports.Envelope, error) {
	body := envelopeRequest{
		ExternalID:   req.ProposalID,
		DocumentPath: req.DocumentPath,
		Signers:      []signer{{Name: req.SignerName, Email: req.SignerEmail, TaxID: req.SignerTaxID}},
	}
	var out envelopeResponse
	if err := c.http.Do(ctx, http.MethodPost, "/v1/envelopes", body, &out); err != nil {
		return ports.Envelope{}, err
	}
	if out.ID == "" || len(out.Signers) == 0 || out.Signers[0].URL == "" {
		return ports.Envelope{}, errors.New("e-signature provider returned an incomplete envelope")
	}
	return ports.Envelope{ID: out.ID, SignerURL: out.Signers[0].URL}, nil
}
