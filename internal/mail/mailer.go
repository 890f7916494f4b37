// Package mail は学生向けメール通知の送信器を提供する。
// 送信はSMTP経由のベストエフォートで、呼び出しごとに独立して成功・失敗する。
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

// Dispatcher は1通のメール通知を送信するインターフェース。
// ハンドラとファンアウト処理はこのインターフェースにのみ依存し、
// テストではスタブ実装に差し替える。
type Dispatcher interface {
	// Send は指定アドレスに件名・本文のメールを1通送信する。
	// コンテキストのキャンセル・タイムアウトで中断できる。
	Send(ctx context.Context, to, subject, body string) error
}

// Config はSMTP送信器の設定。
// 認証情報はプロセス起動時に一度だけ読み込まれ、以後変更されない。
type Config struct {
	// Host はSMTPサーバーのホスト名。
	Host string
	// Port はSMTPサーバーのポート番号。
	Port int
	// Username は送信元アカウントのユーザー名。
	Username string
	// Password は送信元アカウントのパスワード。
	Password string
	// From は送信元メールアドレス。空の場合はUsernameを使用する。
	From string
	// RatePerSec は1秒あたりの送信数上限。0以下の場合はデフォルト値を使用する。
	RatePerSec float64
}

// defaultRatePerSec はSMTPサーバーへの送信レートのデフォルト上限。
const defaultRatePerSec = 5

// SMTPDispatcher はSMTP経由でメールを送信するDispatcher実装。
// 送信レートを制限して、ファンアウト時にSMTPサーバーへ
// 一斉にコネクションを張らないようにする。
type SMTPDispatcher struct {
	// client はSMTPクライアント。並行送信に対して安全。
	client *gomail.Client
	// from は送信元アドレス。
	from string
	// limiter は送信レート制限。
	limiter *rate.Limiter
}

// NewSMTPDispatcher は新しいSMTP送信器を生成する。
func NewSMTPDispatcher(cfg Config) (*SMTPDispatcher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTPホストが指定されていません")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("SMTP認証情報（EMAIL_USER / EMAIL_PASS）が指定されていません")
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}

	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("SMTPクライアントの生成に失敗: %w", err)
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}

	return &SMTPDispatcher{
		client:  client,
		from:    from,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}, nil
}

// Send は1通のメールを送信する。
// レート制限の待機とSMTP送信の両方がコンテキストで中断できる。
func (d *SMTPDispatcher) Send(ctx context.Context, to, subject, body string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("送信レート制限の待機に失敗: %w", err)
	}

	msg := gomail.NewMsg()
	if err := msg.From(d.from); err != nil {
		return fmt.Errorf("送信元アドレスが不正: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("宛先アドレスが不正: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("メール送信に失敗: %w", err)
	}
	return nil
}
