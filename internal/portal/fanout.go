package portal

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// maxConcurrentDispatch は同時に送信する通知メールの上限。
	maxConcurrentDispatch = 8
	// dispatchTimeout は1通あたりの送信試行のタイムアウト。
	// 遅いSMTP応答が無関係な学生への送信を道連れにしないための上限。
	dispatchTimeout = 10 * time.Second
	// auditWriteTimeout は監査レコード書き込みのタイムアウト。
	auditWriteTimeout = 5 * time.Second
)

// notificationDetail はファンアウト結果の1学生分のエントリ。
// 送信の成否にかかわらず、列挙した全学生がレスポンスに含まれる。
type notificationDetail struct {
	// StudentName は学生の氏名。
	StudentName string `json:"studentName"`
	// StudentEmail は学生のメールアドレス。
	StudentEmail string `json:"studentEmail"`
	// Delivered はメールが実際に届けられたかどうか。
	Delivered bool `json:"delivered"`
}

// notifyStudents は新企業の告知を全学生にファンアウトする。
// 学生の列挙に失敗した場合のみエラーを返す。個々の送信失敗は
// ログに記録して握りつぶし、全体の結果には影響させない。
//
// 各学生について「送信試行 → 監査レコード挿入」の組を1単位として実行する。
// 監査レコードは成否にかかわらず試行ごとに1件書き込み、成否はDeliveredで区別する。
func (s *Server) notifyStudents(ctx context.Context, company Company) ([]notificationDetail, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("通知対象の学生の列挙に失敗: %w", err)
	}

	details := make([]notificationDetail, len(students))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentDispatch)

	for i, st := range students {
		eg.Go(func() error {
			delivered := s.dispatchAnnouncement(gctx, st, company)

			// 監査レコードの書き込みはリクエストのキャンセルから切り離す。
			// 途中でキャンセルされたリクエストが監査ログに説明のつかない
			// 欠落を残さないようにするため。
			auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
			defer cancel()

			if err := s.store.CreateNotification(auditCtx, Notification{
				ID:          uuid.New().String(),
				StudentID:   st.ID,
				StudentName: st.FullName,
				CompanyID:   company.CompanyID,
				CompanyName: company.CompanyName,
				Delivered:   delivered,
			}); err != nil {
				log.Printf("通知記録の挿入エラー: student=%s, company=%s, %v", st.USN, company.CompanyName, err)
			}

			details[i] = notificationDetail{
				StudentName:  st.FullName,
				StudentEmail: st.Email,
				Delivered:    delivered,
			}

			// ベストエフォート: 1人への送信失敗で他の学生を止めない。
			return nil
		})
	}

	// 全学生への試行が完了（またはタイムアウト）するまで待つ。
	_ = eg.Wait()

	return details, nil
}

// dispatchAnnouncement は1人の学生に告知メールを送信し、成否を返す。
func (s *Server) dispatchAnnouncement(ctx context.Context, st Student, company Company) bool {
	sendCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	subject, body := buildAnnouncement(st, company)
	if err := s.dispatcher.Send(sendCtx, st.Email, subject, body); err != nil {
		log.Printf("告知メールの送信エラー: student=%s, company=%s, %v", st.USN, company.CompanyName, err)
		return false
	}
	return true
}

// buildAnnouncement は告知メールの件名と本文を組み立てる。
func buildAnnouncement(st Student, company Company) (subject, body string) {
	subject = "New Company Added"
	body = fmt.Sprintf(
		"Dear %s,\n\nA new company has been added to the placement portal.\n\nCompany Name: %s\nRole: %s\nLocation: %s\n\nBest regards,\nPlacement Office",
		st.FullName, company.CompanyName, company.Role, company.Location,
	)
	return subject, body
}
