package portal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// sentMail はテスト用送信器が記録した1通のメール。
type sentMail struct {
	to      string
	subject string
	body    string
}

// fakeDispatcher はSMTPの代わりに送信内容をメモリに記録するテスト用送信器。
// failToに登録した宛先への送信は失敗させられる。
type fakeDispatcher struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]struct{}
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{failTo: make(map[string]struct{})}
}

func (f *fakeDispatcher) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ng := f.failTo[to]; ng {
		return errSendFailed
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// sentMails は記録済みメールのコピーを返す。
func (f *fakeDispatcher) sentMails() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

// failRecipient は指定した宛先への送信を失敗させる。
func (f *fakeDispatcher) failRecipient(to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTo[to] = struct{}{}
}

// errSendFailed はテスト用送信器が返す送信失敗エラー。
var errSendFailed = errors.New("送信に失敗しました")

// setupTestServer はテスト用のポータルサーバーをインメモリSQLiteで構築する。
// SMTP送信器の代わりにテスト用送信器を差し込む。
func setupTestServer(t *testing.T) (*Server, *gin.Engine, *fakeDispatcher) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	dispatcher := newFakeDispatcher()
	router := gin.New()
	s := &Server{
		router:     router,
		port:       "0",
		store:      NewStore(sqlDB),
		db:         sqlDB,
		dispatcher: dispatcher,
		jwtSecret:  "test-secret",
		uploadDir:  t.TempDir(),
	}
	s.setupRoutes()

	return s, router, dispatcher
}

// createTestStudent はテスト用に学生をDBに直接挿入するヘルパー関数。
func createTestStudent(t *testing.T, s *Server, id, usn, fullname, email string) {
	t.Helper()
	err := s.store.CreateStudent(t.Context(), Student{
		ID:       id,
		USN:      usn,
		FullName: fullname,
		Email:    email,
		Details:  "{}",
	})
	if err != nil {
		t.Fatalf("テスト用学生の作成に失敗: %v", err)
	}
}

// createTestCompany はテスト用に企業をDBに直接挿入するヘルパー関数。
func createTestCompany(t *testing.T, s *Server, id, companyID, companyName, role, location string) {
	t.Helper()
	err := s.store.CreateCompany(t.Context(), Company{
		ID:          id,
		CompanyID:   companyID,
		CompanyName: companyName,
		Role:        role,
		Location:    location,
		Details:     "{}",
	})
	if err != nil {
		t.Fatalf("テスト用企業の作成に失敗: %v", err)
	}
}

// createTestLogin はテスト用にログイン資格情報をDBに直接挿入するヘルパー関数。
// パスワードは平文で受け取り、ハッシュ化して保存する。
func createTestLogin(t *testing.T, s *Server, id, username, password, userType string) {
	t.Helper()
	hash, err := hashInitialPassword(password)
	if err != nil {
		t.Fatalf("テスト用パスワードのハッシュ化に失敗: %v", err)
	}
	err = s.store.CreateLogin(t.Context(), Login{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		UserType:     userType,
	})
	if err != nil {
		t.Fatalf("テスト用資格情報の作成に失敗: %v", err)
	}
}

// doRequest はテスト用のJSONリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// doAuthRequest はBearerトークン付きでJSONリクエストを実行するヘルパー関数。
func doAuthRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// doMultipartRequest はマルチパートフォームのリクエストを実行するヘルパー関数。
// fileContentがnilの場合はファイルパートを付けない。
func doMultipartRequest(t *testing.T, router *gin.Engine, path string, fields map[string]string, fileField, fileName string, fileContent []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("フォームフィールドの書き込みに失敗: %v", err)
		}
	}
	if fileContent != nil {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("ファイルパートの作成に失敗: %v", err)
		}
		if _, err := io.Copy(fw, bytes.NewReader(fileContent)); err != nil {
			t.Fatalf("ファイル内容の書き込みに失敗: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("マルチパートのクローズに失敗: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// parseJSONArray はレスポンスボディをスライスにデコードするヘルパー関数。
func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON配列のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	_, router, _ := setupTestServer(t)

	w := doRequest(router, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSON(t, w)
	if result["status"] != "ok" {
		t.Errorf("status: got %v, want ok", result["status"])
	}
	if result["service"] != "portal" {
		t.Errorf("service: got %v, want portal", result["service"])
	}
}

// TestRootWelcome はルートパスの案内文を検証する。
func TestRootWelcome(t *testing.T) {
	t.Parallel()

	_, router, _ := setupTestServer(t)

	w := doRequest(router, http.MethodGet, "/", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "Welcome to the Job Applications API" {
		t.Errorf("ボディ: got %q", w.Body.String())
	}
}

// TestCountEndpoints はダッシュボード用の件数取得エンドポイントを検証する。
func TestCountEndpoints(t *testing.T) {
	t.Parallel()

	s, router, _ := setupTestServer(t)

	createTestStudent(t, s, "st-1", "1MS21CS001", "山田太郎", "taro@example.com")
	createTestStudent(t, s, "st-2", "1MS21CS002", "佐藤花子", "hanako@example.com")
	createTestCompany(t, s, "co-1", "C-100", "TechCorp", "Engineer", "Tokyo")

	t.Run("学生数を取得できる", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/students/count", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["count"] != float64(2) {
			t.Errorf("count: got %v, want 2", result["count"])
		}
	})

	t.Run("企業数を取得できる", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/companies/count", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["count"] != float64(1) {
			t.Errorf("count: got %v, want 1", result["count"])
		}
	})

	t.Run("通知が0件でもcountを返す", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/notifications/count", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["count"] != float64(0) {
			t.Errorf("count: got %v, want 0", result["count"])
		}
	})
}
