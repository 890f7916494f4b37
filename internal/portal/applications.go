package portal

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/placement/pkg/middleware"
)

// applicationResponse は応募のJSONレスポンス構造。
// フィールド名はフロントエンドが期待するcamelCase表記。
type applicationResponse struct {
	// ID は応募の一意識別子。
	ID string `json:"id"`
	// USN は応募した学生の学籍番号。
	USN string `json:"usn"`
	// CompanyID は応募先企業のID。
	CompanyID string `json:"companyId"`
	// CompanyName は応募先企業名。
	CompanyName string `json:"companyName"`
	// Role は応募した職種。
	Role string `json:"role"`
	// FullName は応募者氏名。
	FullName string `json:"fullName"`
	// PhoneNumber は応募者電話番号。
	PhoneNumber string `json:"phoneNumber"`
	// Email は応募者メールアドレス。
	Email string `json:"email"`
	// Resume は履歴書ファイルの保存パス。
	Resume string `json:"resume"`
	// CreatedAt は応募日時。
	CreatedAt string `json:"createdAt"`
}

// toApplicationResponses はDB行のスライスをJSONレスポンスのスライスに変換する。
func toApplicationResponses(apps []Application) []applicationResponse {
	responses := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		responses = append(responses, applicationResponse{
			ID:          a.ID,
			USN:         a.USN,
			CompanyID:   a.CompanyID,
			CompanyName: a.CompanyName,
			Role:        a.Role,
			FullName:    a.FullName,
			PhoneNumber: a.PhoneNumber,
			Email:       a.Email,
			Resume:      a.ResumePath,
			CreatedAt:   a.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return responses
}

// handleApply は求人応募の受付を処理するハンドラを返す。
// マルチパートフォームから応募情報と履歴書ファイルを受け取り、
// ファイルをディスクに保存してから応募レコードを挿入する。
// レスポンスはプレーンテキスト。
func (s *Server) handleApply() gin.HandlerFunc {
	return func(c *gin.Context) {
		usn := c.PostForm("username")
		if usn == "" {
			c.String(http.StatusBadRequest, "username is required")
			return
		}

		// 履歴書ファイルは必須。欠落したまま応募だけ記録してはならない。
		file, header, err := c.Request.FormFile("resume")
		if err != nil {
			c.String(http.StatusBadRequest, "resume file is required")
			return
		}
		defer file.Close()

		if header.Size > maxResumeSize {
			c.String(http.StatusBadRequest, fmt.Sprintf("resume file exceeds the %dMB limit", maxResumeSize/(1<<20)))
			return
		}

		// 保存名はアップロード時刻（ミリ秒）＋元の拡張子。
		filename := fmt.Sprintf("%d%s", time.Now().UnixMilli(), filepath.Ext(header.Filename))
		resumePath := filepath.Join(s.uploadDir, filename)

		dst, err := os.Create(resumePath)
		if err != nil {
			c.String(http.StatusInternalServerError, "Error submitting application")
			log.Printf("履歴書ファイルの作成に失敗: %v", err)
			return
		}
		defer dst.Close()

		if _, err := io.Copy(dst, file); err != nil {
			c.String(http.StatusInternalServerError, "Error submitting application")
			log.Printf("履歴書ファイルの書き込みに失敗: %v", err)
			return
		}

		app := Application{
			ID:          uuid.New().String(),
			USN:         usn,
			CompanyID:   c.PostForm("companyId"),
			CompanyName: c.PostForm("companyName"),
			Role:        c.PostForm("role"),
			FullName:    c.PostForm("fullName"),
			PhoneNumber: c.PostForm("phoneNumber"),
			Email:       c.PostForm("email"),
			ResumePath:  resumePath,
		}
		if err := s.store.CreateApplication(c.Request.Context(), app); err != nil {
			// 応募レコードが残らないなら、保存済みファイルも残さない。
			if removeErr := os.Remove(resumePath); removeErr != nil {
				log.Printf("履歴書ファイルのクリーンアップに失敗: %v", removeErr)
			}
			c.String(http.StatusInternalServerError, "Error submitting application")
			log.Printf("応募の挿入エラー: %v", err)
			return
		}

		c.String(http.StatusCreated, "Application submitted successfully")
	}
}

// handleListApplications は全応募の一覧を返すハンドラを返す。
// /api/applications と /api/applications/student の両方から使われる
// （2つのパスは同じ意味を持つ）。
func (s *Server) handleListApplications() gin.HandlerFunc {
	return func(c *gin.Context) {
		apps, err := s.store.ListApplications(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error fetching applications",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("応募一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toApplicationResponses(apps))
	}
}

// handleListApplicationsByUSN は指定した学生の応募一覧を返すハンドラを返す。
// 応募が存在しない場合は空配列を返す（404にはしない）。
func (s *Server) handleListApplicationsByUSN() gin.HandlerFunc {
	return func(c *gin.Context) {
		usn := c.Param("usn")
		apps, err := s.store.ListApplicationsByUSN(c.Request.Context(), usn)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Internal server error",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("応募一覧取得エラー: usn=%s, %v", usn, err)
			return
		}
		c.JSON(http.StatusOK, toApplicationResponses(apps))
	}
}

// handleListApplicationsByCompany は指定した企業への応募一覧を返すハンドラを返す。
func (s *Server) handleListApplicationsByCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyName := c.Param("companyName")
		apps, err := s.store.ListApplicationsByCompanyName(c.Request.Context(), companyName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Internal server error",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("応募一覧取得エラー: company=%s, %v", companyName, err)
			return
		}
		c.JSON(http.StatusOK, toApplicationResponses(apps))
	}
}

// handleListOwnCompanyApplications はログイン中の企業自身への応募一覧を返すハンドラを返す。
// 企業名はリクエストパラメータではなくトークンのクレームから解決する。
func (s *Server) handleListOwnCompanyApplications() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.GetUserType(c) != userTypeCompany {
			c.JSON(http.StatusForbidden, gin.H{
				"message": "Company login required",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		companyName := middleware.GetCompanyName(c)
		if companyName == "" {
			c.JSON(http.StatusForbidden, gin.H{
				"message": "Company login required",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		apps, err := s.store.ListApplicationsByCompanyName(c.Request.Context(), companyName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Internal server error",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("応募一覧取得エラー: company=%s, %v", companyName, err)
			return
		}
		c.JSON(http.StatusOK, toApplicationResponses(apps))
	}
}
