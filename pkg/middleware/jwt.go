package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// ログイン済みユーザーの身元をリクエスト間で持ち回るために使用する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// Username はログインに使用したユーザー名（学生はUSN、企業は企業名）。
	Username string `json:"username"`
	// UserType はユーザー種別（Student / Company / placementofficer）。
	UserType string `json:"user_type"`
	// CompanyName は企業ユーザーの場合の企業名。それ以外は空。
	CompanyName string `json:"company_name,omitempty"`
}

// tokenTTL はログイントークンの有効期間。
const tokenTTL = 24 * time.Hour

// GenerateToken はログイン成功時にJWTトークンを生成する。
// companyNameは企業ユーザーの場合のみ指定する。
func GenerateToken(secret, username, userType, companyName string) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "placement-portal",
		},
		Username:    username,
		UserType:    userType,
		CompanyName: companyName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}
	return signed, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "username" "user_type" "company_name" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		c.Set("username", claims.Username)
		c.Set("user_type", claims.UserType)
		c.Set("company_name", claims.CompanyName)
		c.Next()
	}
}

// GetUsername はGinコンテキストからログイン中のユーザー名を取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUsername(c *gin.Context) string {
	return getStringValue(c, "username")
}

// GetUserType はGinコンテキストからユーザー種別を取得する。
func GetUserType(c *gin.Context) string {
	return getStringValue(c, "user_type")
}

// GetCompanyName はGinコンテキストから企業名を取得する。
// 企業ユーザー以外の場合は空文字を返す。
func GetCompanyName(c *gin.Context) string {
	return getStringValue(c, "company_name")
}

// getStringValue はコンテキストから文字列値を取り出す。
func getStringValue(c *gin.Context, key string) string {
	v, _ := c.Get(key)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
