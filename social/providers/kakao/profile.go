package kakao

import (
	"encoding/json"
	"strconv"

	"github.com/inflowhq/go-auth/social"
)

type kakaoUserInfo struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email           string `json:"email"`
		IsEmailValid    bool   `json:"is_email_valid"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Profile         struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

func mapProfile(body []byte) (*social.OAuthProfile, error) {
	info := kakaoUserInfo{}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}

	account := info.KakaoAccount
	profile := &social.OAuthProfile{
		Provider:      social.ProviderKakao,
		Email:         account.Email,
		EmailVerified: account.IsEmailValid && account.IsEmailVerified,
		Name:          account.Profile.Nickname,
		AvatarURL:     account.Profile.ProfileImageURL,
	}
	if info.ID != 0 {
		profile.ProviderUserID = strconv.FormatInt(info.ID, 10)
	}
	return profile, nil
}
