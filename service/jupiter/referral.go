package jupiter

import (
	"context"
	"fmt"
	"net/url"
)

type createTokenAccountBody struct {
	Mint     string `json:"mint"`
	FeePayer string `json:"feePayer"`
}

type createTokenAccountResponse struct {
	Tx string `json:"tx"`
}

// CreateReferralTokenAccount requests an unsigned transaction that creates
// the referral fee token account for mint. feePayer must sign it.
func (c *Client) CreateReferralTokenAccount(ctx context.Context, referral, mint, feePayer string) (string, error) {
	endpoint := fmt.Sprintf("%s/referral/%s/token-accounts/create", c.referralURL, url.PathEscape(referral))

	var out createTokenAccountResponse
	if err := c.postJSON(ctx, endpoint, "referral_create", createTokenAccountBody{
		Mint:     mint,
		FeePayer: feePayer,
	}, &out); err != nil {
		return "", err
	}
	if out.Tx == "" {
		return "", fmt.Errorf("referral_create: response has no transaction")
	}
	return out.Tx, nil
}
