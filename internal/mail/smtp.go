package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/iabetor/aeronews/internal/logger"
)

const (
	defaultHost     = "smtp.gmail.com"
	defaultPort     = 587
	defaultTimeout  = 30 * time.Second
	implicitTLSPort = 465
)

// Config SMTP 连接配置。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPTransport 通过 SMTP 发送邮件。
// 587 端口使用 STARTTLS，465 端口使用隐式 TLS，认证方式为 PLAIN。
type SMTPTransport struct {
	cfg Config

	// allowPlaintext 为 true 时服务器不支持 STARTTLS 也继续发送，仅用于测试。
	allowPlaintext bool
	tlsConfig      *tls.Config
}

// NewSMTPTransport 创建 SMTP 发送器。
func NewSMTPTransport(cfg Config) *SMTPTransport {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPTransport{
		cfg: cfg,
		tlsConfig: &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		},
	}
}

// From 返回默认发件人。
func (t *SMTPTransport) From() string {
	return t.cfg.From
}

// Send 发送一封邮件。不做重试，失败时返回 *Error。
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if t.cfg.Username == "" || t.cfg.Password == "" {
		return ErrMissingCredentials
	}
	if len(msg.To) == 0 {
		return &Error{Kind: TransportFailure, Err: errors.New("没有收件人")}
	}
	if msg.From == "" {
		msg.From = t.cfg.From
	}

	body, err := msg.Encode(time.Now())
	if err != nil {
		return &Error{Kind: TransportFailure, Err: fmt.Errorf("编码邮件失败: %w", err)}
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	logger.Debugf("[mail] 连接 SMTP 服务器 %s", addr)

	conn, err := t.dial(ctx, addr)
	if err != nil {
		return &Error{Kind: TransportFailure, Err: err}
	}
	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return &Error{Kind: TransportFailure, Err: err}
	}
	defer c.Close()

	if err := t.startTLS(c); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return classify(AuthenticationFailure, "", err)
	}

	if err := c.Mail(msg.From); err != nil {
		return &Error{Kind: TransportFailure, Err: err}
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return classify(RecipientRejected, rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return &Error{Kind: TransportFailure, Err: err}
	}
	if _, err := w.Write(body); err != nil {
		return &Error{Kind: TransportFailure, Err: err}
	}
	if err := w.Close(); err != nil {
		return &Error{Kind: TransportFailure, Err: err}
	}
	if err := c.Quit(); err != nil {
		logger.Warnf("[mail] QUIT 失败（邮件已提交）: %v", err)
	}

	logger.Infof("[mail] 邮件已发送: %v", msg.To)
	return nil
}

func (t *SMTPTransport) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: t.cfg.Timeout}
	if t.cfg.Port == implicitTLSPort {
		td := &tls.Dialer{NetDialer: d, Config: t.tlsConfig}
		return td.DialContext(ctx, "tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

// startTLS 在非隐式 TLS 连接上升级到 TLS，服务器不支持时拒绝明文发送。
func (t *SMTPTransport) startTLS(c *smtp.Client) error {
	if t.cfg.Port == implicitTLSPort {
		return nil
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		if t.allowPlaintext {
			return nil
		}
		return &Error{Kind: TransportFailure, Err: errors.New("服务器不支持 STARTTLS")}
	}
	if err := c.StartTLS(t.tlsConfig); err != nil {
		return &Error{Kind: TransportFailure, Err: fmt.Errorf("STARTTLS 失败: %w", err)}
	}
	return nil
}

// classify 只有服务器明确回复错误码时才归为 kind，网络错误一律视为传输失败。
func classify(kind Kind, rcpt string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return &Error{Kind: kind, Recipient: rcpt, Err: err}
	}
	return &Error{Kind: TransportFailure, Recipient: rcpt, Err: err}
}
