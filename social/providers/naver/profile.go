package naver

import (
	"encoding/json"
	"fmt"

	"github.com/inflowhq/go-auth/social"
)

const resultCodeSuccess = "00"

type naverUserInfo struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Name         string `json:"name"`
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"response"`
}

// mapProfile reads the envelope Naver wraps every profile in. Naver only
// releases addresses it has verified.
func mapProfile(body []byte) (*social.OAuthProfile, error) {
	info := naverUserInfo{}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	if info.ResultCode != resultCodeSuccess {
		return nil, fmt.Errorf("naver profile result %s: %s", info.ResultCode, info.Message)
	}

	name := info.Response.Name
	if name == "" {
		name = info.Response.Nickname
	}

	return &social.OAuthProfile{
		Provider:       social.ProviderNaver,
		ProviderUserID: info.Response.ID,
		Email:          info.Response.Email,
		EmailVerified:  info.Response.Email != "",
		Name:           name,
		AvatarURL:      info.Response.ProfileImage,
	}, nil
}
