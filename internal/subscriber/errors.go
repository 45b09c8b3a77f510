package subscriber

import "errors"

// Kind 订阅操作失败的类别。
type Kind int

const (
	KindInvalidFormat Kind = iota + 1
	KindAlreadySubscribed
	KindNotFound
	KindMissingIdentifier
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "invalid_format"
	case KindAlreadySubscribed:
		return "already_subscribed"
	case KindNotFound:
		return "not_found"
	case KindMissingIdentifier:
		return "missing_identifier"
	case KindPersistence:
		return "persistence_error"
	default:
		return "unknown"
	}
}

// message 是返回给用户的提示语。
func (k Kind) message() string {
	switch k {
	case KindInvalidFormat:
		return "Invalid email format"
	case KindAlreadySubscribed:
		return "Email already subscribed"
	case KindNotFound:
		return "Email not found in subscribers"
	case KindMissingIdentifier:
		return "Email or unsubscribe token required"
	case KindPersistence:
		return "Failed to save subscribers"
	default:
		return "Unknown error"
	}
}

// Error 订阅存储返回的错误。
type Error struct {
	Kind  Kind
	Email string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.message()
	if e.Email != "" {
		msg += ": " + e.Email
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrNotFound) 这类判断只比较 Kind。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidFormat     = &Error{Kind: KindInvalidFormat}
	ErrAlreadySubscribed = &Error{Kind: KindAlreadySubscribed}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrMissingIdentifier = &Error{Kind: KindMissingIdentifier}
	ErrPersistence       = &Error{Kind: KindPersistence}
)

// KindOf 返回 err 的类别，非订阅存储错误返回 0。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message 返回适合直接展示给用户的错误说明。
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.message()
	}
	return err.Error()
}

// Result 是给 CLI 和 HTTP 层使用的结构化结果。
type Result struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Email      string      `json:"email,omitempty"`
	Subscriber *Subscriber `json:"subscriber,omitempty"`
}

const (
	MsgSubscribed   = "Successfully subscribed to newsletter"
	MsgUnsubscribed = "Successfully unsubscribed from newsletter"
)

// NewResult 根据操作返回值构造 Result，err 为 nil 时使用 okMessage。
func NewResult(email string, sub *Subscriber, err error, okMessage string) Result {
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Email != "" {
			email = e.Email
		}
		return Result{Success: false, Message: Message(err), Email: email}
	}
	if sub != nil {
		email = sub.Email
	}
	return Result{Success: true, Message: okMessage, Email: email, Subscriber: sub}
}
