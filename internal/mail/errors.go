package mail

import (
	"errors"
	"fmt"
)

// Kind 投递失败的类别。
type Kind int

const (
	// AuthenticationFailure SMTP 服务器拒绝了登录凭证。
	AuthenticationFailure Kind = iota + 1
	// RecipientRejected 服务器拒绝了收件人地址。
	RecipientRejected
	// TransportFailure 其他所有失败：连接、TLS、协议错误等。
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case AuthenticationFailure:
		return "authentication_failure"
	case RecipientRejected:
		return "recipient_rejected"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Error 邮件发送错误。
type Error struct {
	Kind      Kind
	Recipient string
	Err       error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case AuthenticationFailure:
		msg = "SMTP 认证失败"
	case RecipientRejected:
		msg = fmt.Sprintf("收件人被拒绝 %s", e.Recipient)
	default:
		msg = "邮件发送失败"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 只比较 Kind。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAuthentication    = &Error{Kind: AuthenticationFailure}
	ErrRecipientRejected = &Error{Kind: RecipientRejected}
	ErrTransport         = &Error{Kind: TransportFailure}

	// ErrMissingCredentials 未配置 SMTP 用户名或密码，在建立连接前返回。
	ErrMissingCredentials = errors.New("未配置 SMTP 用户名或密码")
)

// KindOf 返回 err 的类别，非 *Error 返回 0。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
