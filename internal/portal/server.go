package portal

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/placement/internal/mail"
	"github.com/nao1215/placement/pkg/middleware"
)

// maxResumeSize はアップロード可能な履歴書ファイルの最大サイズ（10MB）。
const maxResumeSize int64 = 10 << 20

// Server は就職ポータルのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はポータル全パーティションへのクエリ実行オブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// dispatcher は学生向けメール通知の送信器。
	dispatcher mail.Dispatcher
	// jwtSecret はログイントークンの署名用秘密鍵。
	jwtSecret string
	// uploadDir は履歴書ファイルの保存ディレクトリ。
	uploadDir string
}

// NewServer は新しいポータルサーバーを生成する。
// SQLiteデータベースの初期化、履歴書保存先の作成、SMTP送信器の構築を行う。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("PORTAL_DB_PATH", "/data/portal.db?_journal_mode=WAL&_busy_timeout=5000")
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	uploadDir := getEnvOr("UPLOAD_DIR", "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("アップロードディレクトリの作成に失敗: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnvOr("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("SMTP_PORTが不正: %w", err)
	}
	dispatcher, err := mail.NewSMTPDispatcher(mail.Config{
		Host:     getEnvOr("SMTP_HOST", "smtp.gmail.com"),
		Port:     smtpPort,
		Username: os.Getenv("EMAIL_USER"),
		Password: os.Getenv("EMAIL_PASS"),
	})
	if err != nil {
		return nil, fmt.Errorf("メール送信器の初期化に失敗: %w", err)
	}

	jwtSecret := getEnvOr("JWT_SECRET", "dev-secret-key")
	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	// 履歴書アップロードの最大メモリを設定する。
	router.MaxMultipartMemory = maxResumeSize

	s := &Server{
		router:     router,
		port:       port,
		store:      NewStore(sqlDB),
		db:         sqlDB,
		dispatcher: dispatcher,
		jwtSecret:  jwtSecret,
		uploadDir:  uploadDir,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// パスは既存フロントエンドとの互換性のために固定している。
func (s *Server) setupRoutes() {
	// 応募の受付（マルチパートフォーム）と履歴書の静的配信
	s.router.POST("/apply", s.handleApply())
	s.router.Static("/uploads", s.uploadDir)

	// 企業の掲載と閲覧
	s.router.POST("/submit_company", s.handleSubmitCompany())
	s.router.GET("/view_company", s.handleListCompanies())

	// 担当者の登録
	s.router.POST("/add_placement_officer", s.handleAddPlacementOfficer())

	api := s.router.Group("/api")
	{
		// ログイン
		api.POST("/login", s.handleLogin())

		// 応募の照会
		api.GET("/applications", s.handleListApplications())
		api.GET("/applications/student", s.handleListApplications())
		api.GET("/applications/company/:companyName", s.handleListApplicationsByCompany())
		api.GET("/applications/:usn", s.handleListApplicationsByUSN())
		// ログイン中の企業自身の応募一覧（トークンから企業名を解決する）
		api.GET("/applications/company", middleware.JWTAuth(s.jwtSecret), s.handleListOwnCompanyApplications())

		// 学生とプロフィール
		api.POST("/add_student", s.handleAddStudent())
		api.GET("/profile/:username", s.handleGetProfile())
		api.POST("/createprofile", s.handleCreateProfile())
		api.POST("/updateprofile", s.handleUpdateProfile())

		// 通知監査とダッシュボード用の集計
		api.GET("/notifications/all", s.handleListNotifications())
		api.GET("/students/count", s.handleCountStudents())
		api.GET("/companies/count", s.handleCountCompanies())
		api.GET("/notifications/count", s.handleCountNotifications())
	}

	// ルートの案内文
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to the Job Applications API")
	})

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "portal"})
	})
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
