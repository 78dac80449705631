package model

const (
	RoleAdmin    = "Admin"
	RoleManager  = "Manager"
	RoleCustomer = "Customer"
)

// 起動時にseedするロール
var DefaultRoles = []string{RoleAdmin, RoleManager, RoleCustomer}

type Role struct {
	ID   int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Name string `json:"name" gorm:"type:varchar(50);not null;uniqueIndex"`
}
