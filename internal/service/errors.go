package service

import "errors"

// 业务错误哨兵。校验失败与冲突作为结构化结果返回，
// 这里的错误用于中止当前事务并由handler映射HTTP状态码。
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrAuthorization     = errors.New("not authorized")
	ErrDataIntegrity     = errors.New("data integrity violation")
)

// RoleAdmin 管理员角色，绕过阶段权限并可执行受审计的覆盖操作
const RoleAdmin = "admin"

// Actor 操作者（来自JWT claims）
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole 是否具有指定角色
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin 是否管理员
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}
