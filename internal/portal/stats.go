package portal

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// notificationResponse は通知監査レコードのレスポンス表現。
type notificationResponse struct {
	// ID は通知ID
	ID string `json:"id"`
	// StudentID は通知先学生のID
	StudentID string `json:"studentId"`
	// StudentName は通知先学生の氏名
	StudentName string `json:"studentName"`
	// CompanyID は告知対象企業のID
	CompanyID string `json:"companyId"`
	// CompanyName は告知対象企業の名称
	CompanyName string `json:"companyName"`
	// Delivered は配信が成功したかどうか
	Delivered bool `json:"delivered"`
	// SentDate は通知試行日時
	SentDate string `json:"sentDate"`
}

// handleListNotifications は通知監査レコードの一覧を返すハンドラを返す。
func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.store.ListNotifications(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error fetching notifications",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("通知一覧の取得エラー: %v", err)
			return
		}

		resp := make([]notificationResponse, 0, len(notifications))
		for _, n := range notifications {
			resp = append(resp, notificationResponse{
				ID:          n.ID,
				StudentID:   n.StudentID,
				StudentName: n.StudentName,
				CompanyID:   n.CompanyID,
				CompanyName: n.CompanyName,
				Delivered:   n.Delivered,
				SentDate:    n.SentDate.Format("2006-01-02T15:04:05Z"),
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleCountStudents は登録済み学生数を返すハンドラを返す。
func (s *Server) handleCountStudents() gin.HandlerFunc {
	return s.handleCount(s.store.CountStudents, "学生数の取得エラー")
}

// handleCountCompanies は登録済み企業数を返すハンドラを返す。
func (s *Server) handleCountCompanies() gin.HandlerFunc {
	return s.handleCount(s.store.CountCompanies, "企業数の取得エラー")
}

// handleCountNotifications は通知監査レコード数を返すハンドラを返す。
func (s *Server) handleCountNotifications() gin.HandlerFunc {
	return s.handleCount(s.store.CountNotifications, "通知数の取得エラー")
}

// handleCount は件数取得ハンドラの共通部分。
func (s *Server) handleCount(count func(ctx context.Context) (int64, error), logMsg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := count(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error fetching count",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("%s: %v", logMsg, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}
