package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Facebook resolves user access tokens against the Graph API.
type Facebook struct {
	graphURL string
}

type facebookUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func NewFacebook(graphURL string) *Facebook {
	return &Facebook{graphURL: strings.TrimRight(graphURL, "/")}
}

func (f *Facebook) Resolve(ctx context.Context, token string) (ExternalIdentity, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graphURL+"/me?fields=id,name,email,picture.type(large)", nil)
	if err != nil {
		return ExternalIdentity{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ExternalIdentity{}, fmt.Errorf("graph status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user facebookUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return ExternalIdentity{}, fmt.Errorf("decode graph user: %w", err)
	}
	if user.ID == "" {
		return ExternalIdentity{}, fmt.Errorf("graph user has no id")
	}

	return ExternalIdentity{
		ID:     user.ID,
		Name:   nameOrDefault(user.Name, user.Email),
		Email:  user.Email,
		Avatar: user.Picture.Data.URL,
	}, nil
}
