package users

import (
	"strings"
	"time"
)

// User is a login row checked by plain name/password equality.
type User struct {
	Name      string    `gorm:"column:nome;primaryKey;size:190;not null"`
	Password  string    `gorm:"column:senha;size:190;not null"`
	Active    bool      `gorm:"column:ativo;not null;default:true"`
	CreatedAt time.Time `gorm:"column:criado_em;autoCreateTime"`
}

// TableName binds users to the "usuarios" collection.
func (User) TableName() string {
	return "usuarios"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
