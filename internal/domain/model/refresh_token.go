package model

import "time"

const (
	RevokeReasonReplaced = "Replaced by new token"
	RevokeReasonByUser   = "Revoked by user"
)

// 平文トークンは保存しない（TokenHashだけ持つ）
type RefreshToken struct {
	ID                  string     `json:"id" gorm:"type:uuid;primaryKey"`
	TokenHash           string     `json:"-" gorm:"not null;uniqueIndex"`
	UserID              string     `json:"userId" gorm:"type:uuid;not null;index"`
	User                *User      `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	ExpiresAt           time.Time  `json:"expiresAt" gorm:"not null;index"`
	CreatedAt           time.Time  `json:"createdAt" gorm:"not null"`
	CreatedByIP         *string    `json:"createdByIp" gorm:"type:varchar(64)"`
	RevokedAt           *time.Time `json:"revokedAt" gorm:"index"`
	RevokedByIP         *string    `json:"revokedByIp" gorm:"type:varchar(64)"`
	RevokeReason        *string    `json:"revokeReason" gorm:"type:varchar(100)"`
	ReplacedByTokenHash *string    `json:"-" gorm:"index"`
}

// Revocationは失効時に書き込む内容
type Revocation struct {
	At                  time.Time
	ByIP                *string
	Reason              string
	ReplacedByTokenHash *string
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// 失効していない かつ 期限内
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}
