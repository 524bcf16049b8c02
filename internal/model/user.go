// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal はサインイン中のユーザーの識別情報を表す。
// IDはタスクの所有者キーとして使用される。
type Principal struct {
	ID          string
	DisplayName string
	Email       string
}

// FirstName は表示名の先頭の語を返す。表示名が空の場合はメールアドレスのローカル部を返す。
func (p *Principal) FirstName() string {
	if fields := strings.Fields(p.DisplayName); len(fields) > 0 {
		return fields[0]
	}
	if at := strings.Index(p.Email, "@"); at > 0 {
		return p.Email[:at]
	}
	return p.Email
}

// SamePrincipal は2つのPrincipalが同一ユーザーを指すかを判定する。
// 双方nilの場合も同一とみなす。
func SamePrincipal(a, b *Principal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}
