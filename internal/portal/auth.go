package portal

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/placement/pkg/middleware"
)

// ユーザー種別。値はフロントエンドが送ってくる表記そのまま。
const (
	userTypeStudent          = "Student"
	userTypeCompany          = "Company"
	userTypePlacementOfficer = "placementofficer"
)

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Username はユーザー名（学生はUSN、企業は企業名）。
	Username string `json:"username" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
	// UserType はユーザー種別。
	UserType string `json:"userType" binding:"required"`
}

// handleLogin はログインを処理するハンドラを返す。
// (username, password, userType) の3つ組で資格情報を照合し、
// 成功時は身元を載せた署名付きトークンを発行する。
// 企業ユーザーの場合はレスポンスに企業名を含める。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "Username, password, and userType are required",
				"code":    "VALIDATION_ERROR",
			})
			return
		}

		login, err := s.store.GetLoginByUsernameAndType(c.Request.Context(), req.Username, req.UserType)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid username or password",
				"code":    "UNAUTHORIZED",
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Internal server error",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("資格情報の取得エラー: %v", err)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(login.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid username or password",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		// 企業ユーザーはユーザー名がそのまま企業名なので、掲載レコードから正式名を引く。
		companyName := ""
		if req.UserType == userTypeCompany {
			company, err := s.store.GetCompanyByName(c.Request.Context(), req.Username)
			if err == sql.ErrNoRows {
				// 資格情報だけ残って掲載が存在しない場合は認証失敗として扱う。
				c.JSON(http.StatusUnauthorized, gin.H{
					"message": "Invalid username or password",
					"code":    "UNAUTHORIZED",
				})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"message": "Internal server error",
					"code":    "STORE_UNAVAILABLE",
				})
				log.Printf("企業の取得エラー: %v", err)
				return
			}
			companyName = company.CompanyName
		}

		token, err := middleware.GenerateToken(s.jwtSecret, req.Username, req.UserType, companyName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Internal server error",
				"code":    "INTERNAL",
			})
			log.Printf("トークン生成エラー: %v", err)
			return
		}

		resp := gin.H{
			"message":  "Login successful",
			"token":    token,
			"userType": req.UserType,
		}
		if companyName != "" {
			resp["companyName"] = companyName
		}
		c.JSON(http.StatusOK, resp)
	}
}

// addOfficerRequest は就職担当者登録リクエストのJSON構造。
type addOfficerRequest struct {
	// Username は担当者のユーザー名。
	Username string `json:"username"`
	// Password は担当者のパスワード。
	Password string `json:"password"`
}

// handleAddPlacementOfficer は就職担当者のログイン資格情報を登録するハンドラを返す。
func (s *Server) handleAddPlacementOfficer() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addOfficerRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Username and password are required",
				"code":    "VALIDATION_ERROR",
			})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Error adding placement officer details",
				"code":    "INTERNAL",
			})
			log.Printf("パスワードのハッシュ化エラー: %v", err)
			return
		}

		err = s.store.CreateLogin(c.Request.Context(), Login{
			ID:           uuid.New().String(),
			Username:     req.Username,
			PasswordHash: string(hash),
			UserType:     userTypePlacementOfficer,
		})
		if errors.Is(err, ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"message": fmt.Sprintf("Placement officer %q already exists", req.Username),
				"code":    "DUPLICATE_ENTITY",
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Error adding placement officer details",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("担当者資格情報の挿入エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Placement officer added successfully",
		})
	}
}

// hashInitialPassword は初期パスワードをbcryptでハッシュ化する。
// 初期パスワードは公開名（企業名・USN）と同じ値なので、平文では保存しない。
func hashInitialPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("初期パスワードのハッシュ化に失敗: %w", err)
	}
	return string(hash), nil
}
