package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// companyKnownFields は企業掲載リクエストのうち固定カラムに対応するキー。
// これ以外のキーは定型外フィールドとしてdetailsに保存する。
var companyKnownFields = map[string]struct{}{
	"companyId":   {},
	"companyName": {},
	"role":        {},
	"location":    {},
}

// parseCompanyRequest は自由形式の企業掲載リクエストを解析する。
// 掲載フォームは任意のフィールドを追加できるため、
// 固定フィールド以外も失わずに保持する。
func parseCompanyRequest(raw map[string]any) (Company, error) {
	name, _ := raw["companyName"].(string)
	if name == "" {
		return Company{}, fmt.Errorf("companyNameは必須")
	}

	extras := make(map[string]any)
	for k, v := range raw {
		if _, known := companyKnownFields[k]; !known {
			extras[k] = v
		}
	}
	detailsJSON, err := json.Marshal(extras)
	if err != nil {
		return Company{}, fmt.Errorf("定型外フィールドのシリアライズに失敗: %w", err)
	}

	companyID, _ := raw["companyId"].(string)
	role, _ := raw["role"].(string)
	location, _ := raw["location"].(string)

	return Company{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		CompanyName: name,
		Role:        role,
		Location:    location,
		Details:     string(detailsJSON),
	}, nil
}

// companyToResponse は企業レコードをcamelCaseのレスポンス用マップに変換する。
// detailsに退避した定型外フィールドも展開して返す。
func companyToResponse(c Company) map[string]any {
	resp := make(map[string]any)
	if c.Details != "" {
		// 壊れたJSONが紛れ込んでいても一覧全体は返す。
		if err := json.Unmarshal([]byte(c.Details), &resp); err != nil {
			log.Printf("定型外フィールドの復元に失敗: company=%s, %v", c.CompanyName, err)
			resp = make(map[string]any)
		}
	}
	resp["id"] = c.ID
	resp["companyId"] = c.CompanyID
	resp["companyName"] = c.CompanyName
	resp["role"] = c.Role
	resp["location"] = c.Location
	resp["createdAt"] = c.CreatedAt.Format("2006-01-02T15:04:05Z")
	return resp
}

// handleSubmitCompany は企業掲載の受付とファンアウト告知を処理するハンドラを返す。
//
// 処理は次の順で進む。
//  1. 企業レコードの挿入。失敗したら全体が失敗する（後続は実行しない）。
//  2. 企業ログイン資格情報の作成（ユーザー名＝企業名、初期パスワード＝企業名）。
//  3. 全学生への告知ファンアウト。個々の送信失敗は全体を失敗させない。
//
// 失敗時のレスポンスはプレーンテキスト。
func (s *Server) handleSubmitCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw map[string]any
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.String(http.StatusBadRequest, "Error adding company details: invalid request body")
			return
		}

		company, err := parseCompanyRequest(raw)
		if err != nil {
			c.String(http.StatusBadRequest, "Error adding company details: companyName is required")
			return
		}

		// Step1: 企業レコードの挿入。ここで失敗したら何も起きなかったことになる。
		if err := s.store.CreateCompany(c.Request.Context(), company); err != nil {
			if errors.Is(err, ErrDuplicate) {
				c.String(http.StatusConflict, fmt.Sprintf("Error adding company details: company %q already exists", company.CompanyName))
				return
			}
			c.String(http.StatusInternalServerError, "Error adding company details")
			log.Printf("企業の挿入エラー: %v", err)
			return
		}

		// Step2: 企業のログイン資格情報を作成する。
		// 初期パスワードは企業名（保存はハッシュ）。初回ログイン後の変更を前提とした規約。
		hash, err := hashInitialPassword(company.CompanyName)
		if err != nil {
			c.String(http.StatusInternalServerError, "Error adding company details")
			log.Printf("企業パスワードのハッシュ化エラー: %v", err)
			return
		}
		if err := s.store.CreateLogin(c.Request.Context(), Login{
			ID:           uuid.New().String(),
			Username:     company.CompanyName,
			PasswordHash: hash,
			UserType:     userTypeCompany,
		}); err != nil {
			c.String(http.StatusInternalServerError, "Error adding company details")
			log.Printf("企業資格情報の挿入エラー: %v", err)
			return
		}

		// Step3: 全学生への告知ファンアウト。
		details, err := s.notifyStudents(c.Request.Context(), company)
		if err != nil {
			c.String(http.StatusInternalServerError, "Error adding company details")
			log.Printf("ファンアウトエラー: company=%s, %v", company.CompanyName, err)
			return
		}

		// 挿入済みの企業レコードをDBから取得してレスポンスを返す。
		created, err := s.store.GetCompanyByName(c.Request.Context(), company.CompanyName)
		if err != nil {
			c.String(http.StatusInternalServerError, "Error adding company details")
			log.Printf("挿入済み企業の取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":             "Company details added successfully",
			"companyDetails":      companyToResponse(created),
			"notificationDetails": details,
		})
	}
}

// handleListCompanies は全企業の一覧を返すハンドラを返す。
func (s *Server) handleListCompanies() gin.HandlerFunc {
	return func(c *gin.Context) {
		companies, err := s.store.ListCompanies(c.Request.Context())
		if err != nil {
			c.String(http.StatusInternalServerError, "Error fetching company details")
			log.Printf("企業一覧取得エラー: %v", err)
			return
		}

		responses := make([]map[string]any, 0, len(companies))
		for _, company := range companies {
			responses = append(responses, companyToResponse(company))
		}
		c.JSON(http.StatusOK, responses)
	}
}
