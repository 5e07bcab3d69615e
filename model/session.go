package model

// Session 会话，只有两种形态：匿名或已登录。
// 在请求入口解析一次，之后只通过 Authenticated() 判断。
type Session interface {
	isSession()
}

// Anonymous 未登录会话
type Anonymous struct{}

// Authenticated 已登录会话
type Authenticated struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

func (Anonymous) isSession()     {}
func (Authenticated) isSession() {}

// AuthenticatedUser 返回登录用户，匿名时 ok 为 false
func AuthenticatedUser(s Session) (Authenticated, bool) {
	switch v := s.(type) {
	case Authenticated:
		return v, true
	case *Authenticated:
		if v != nil {
			return *v, true
		}
	}
	return Authenticated{}, false
}
