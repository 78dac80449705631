package model

import "time"

// 認証まわりのセキュリティイベント
type AuditAction string

const (
	AuditActionUserRegistered      AuditAction = "USER_REGISTERED"
	AuditActionUserLockedOut       AuditAction = "USER_LOCKED_OUT"
	AuditActionRefreshTokenRotated AuditAction = "REFRESH_TOKEN_ROTATED"
	AuditActionRefreshTokenRevoked AuditAction = "REFRESH_TOKEN_REVOKED"
	//置き換え済みトークンが再提示された
	AuditActionRefreshTokenReuse AuditAction = "REFRESH_TOKEN_REUSE"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceUser         AuditResourceType = "user"
	AuditResourceRefreshToken AuditResourceType = "refresh_token"
)

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どこから」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID。
	ActorUserID string `gorm:"type:uuid;not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//呼び出し元IP（X-Forwarded-For or ソケット）
	IP string `gorm:"type:varchar(64)" json:"ip"`

	Detail string `gorm:"type:text" json:"detail"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
