package google

import (
	"encoding/json"

	"github.com/inflowhq/go-auth/social"
)

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func mapProfile(body []byte) (*social.OAuthProfile, error) {
	info := googleUserInfo{}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}

	return &social.OAuthProfile{
		ProviderUserID: info.Sub,
		Provider:       social.ProviderGoogle,
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		Name:           info.Name,
		AvatarURL:      info.Picture,
		Raw: map[string]any{
			"sub":         info.Sub,
			"given_name":  info.GivenName,
			"family_name": info.FamilyName,
			"locale":      info.Locale,
		},
	}, nil
}
