package portal

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

// submitCompanyBody は企業掲載リクエストの標準的なボディを返すヘルパー関数。
func submitCompanyBody(companyName string) map[string]any {
	return map[string]any{
		"companyId":   "C-100",
		"companyName": companyName,
		"role":        "Engineer",
		"location":    "Tokyo",
	}
}

// TestHandleSubmitCompany は企業掲載ハンドラのテスト。
func TestHandleSubmitCompany(t *testing.T) {
	t.Parallel()

	t.Run("企業を登録し全学生へ通知する", func(t *testing.T) {
		t.Parallel()
		s, router, dispatcher := setupTestServer(t)

		createTestStudent(t, s, "st-1", "1MS21CS001", "山田太郎", "taro@example.com")
		createTestStudent(t, s, "st-2", "1MS21CS002", "佐藤花子", "hanako@example.com")
		createTestStudent(t, s, "st-3", "1MS21CS003", "鈴木一郎", "ichiro@example.com")

		w := doRequest(router, http.MethodPost, "/submit_company", submitCompanyBody("TechCorp"))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["message"] != "Company details added successfully" {
			t.Errorf("message: got %v", result["message"])
		}

		company, ok := result["companyDetails"].(map[string]any)
		if !ok {
			t.Fatalf("companyDetailsがオブジェクトではありません: %v", result["companyDetails"])
		}
		if company["companyName"] != "TechCorp" {
			t.Errorf("companyName: got %v, want TechCorp", company["companyName"])
		}

		notifications, ok := result["notificationDetails"].([]any)
		if !ok {
			t.Fatalf("notificationDetailsが配列ではありません: %v", result["notificationDetails"])
		}
		if len(notifications) != 3 {
			t.Errorf("通知詳細の数: got %d, want 3", len(notifications))
		}
		for _, n := range notifications {
			detail := n.(map[string]any)
			if detail["delivered"] != true {
				t.Errorf("delivered: got %v, want true", detail["delivered"])
			}
		}

		// 全学生宛にメールが送信されたことを確認する
		sent := dispatcher.sentMails()
		if len(sent) != 3 {
			t.Fatalf("送信メールの数: got %d, want 3", len(sent))
		}
		for _, m := range sent {
			if m.subject != "New Company Added" {
				t.Errorf("subject: got %q, want New Company Added", m.subject)
			}
			if !strings.Contains(m.body, "Company Name: TechCorp") {
				t.Errorf("本文に企業名が含まれていません: %q", m.body)
			}
		}

		// 通知監査レコードが全学生分保存されていることを確認する
		records, err := s.store.ListNotifications(t.Context())
		if err != nil {
			t.Fatalf("通知一覧の取得に失敗: %v", err)
		}
		if len(records) != 3 {
			t.Errorf("通知監査レコードの数: got %d, want 3", len(records))
		}
	})

	t.Run("一部の送信が失敗しても登録は成功しdelivered=falseで記録される", func(t *testing.T) {
		t.Parallel()
		s, router, dispatcher := setupTestServer(t)

		createTestStudent(t, s, "st-1", "1MS21CS001", "山田太郎", "taro@example.com")
		createTestStudent(t, s, "st-2", "1MS21CS002", "佐藤花子", "hanako@example.com")
		dispatcher.failRecipient("hanako@example.com")

		w := doRequest(router, http.MethodPost, "/submit_company", submitCompanyBody("TechCorp"))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		records, err := s.store.ListNotifications(t.Context())
		if err != nil {
			t.Fatalf("通知一覧の取得に失敗: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("通知監査レコードの数: got %d, want 2", len(records))
		}

		deliveredByName := make(map[string]bool, len(records))
		for _, r := range records {
			deliveredByName[r.StudentName] = r.Delivered
		}
		if !deliveredByName["山田太郎"] {
			t.Error("山田太郎: delivered=false, want true")
		}
		if deliveredByName["佐藤花子"] {
			t.Error("佐藤花子: delivered=true, want false")
		}
	})

	t.Run("学生が存在しない場合は空の通知詳細で成功する", func(t *testing.T) {
		t.Parallel()
		_, router, dispatcher := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/submit_company", submitCompanyBody("TechCorp"))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON(t, w)
		notifications, ok := result["notificationDetails"].([]any)
		if !ok {
			t.Fatalf("notificationDetailsが配列ではありません: %v", result["notificationDetails"])
		}
		if len(notifications) != 0 {
			t.Errorf("通知詳細の数: got %d, want 0", len(notifications))
		}
		if len(dispatcher.sentMails()) != 0 {
			t.Errorf("送信メールの数: got %d, want 0", len(dispatcher.sentMails()))
		}
	})

	t.Run("同一企業名の再登録はConflict", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/submit_company", submitCompanyBody("TechCorp"))
		if w.Code != http.StatusOK {
			t.Fatalf("初回登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}

		w2 := doRequest(router, http.MethodPost, "/submit_company", submitCompanyBody("TechCorp"))
		if w2.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w2.Code, http.StatusConflict)
		}
	})

	t.Run("companyNameが欠けている場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/submit_company", map[string]any{
			"companyId": "C-100",
			"role":      "Engineer",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("登録後に企業名を初期パスワードとしてログインできる", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/submit_company", submitCompanyBody("TechCorp"))
		if w.Code != http.StatusOK {
			t.Fatalf("登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}

		w2 := doRequest(router, http.MethodPost, "/api/login", map[string]string{
			"username": "TechCorp",
			"password": "TechCorp",
			"userType": userTypeCompany,
		})
		if w2.Code != http.StatusOK {
			t.Fatalf("ログインのステータスコード: got %d, want %d, body=%s", w2.Code, http.StatusOK, w2.Body.String())
		}
		result := parseJSON(t, w2)
		if result["companyName"] != "TechCorp" {
			t.Errorf("companyName: got %v, want TechCorp", result["companyName"])
		}
	})

	t.Run("定型外フィールドはレスポンスに展開される", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		body := submitCompanyBody("TechCorp")
		body["ctc"] = "12LPA"
		body["deadline"] = "2026-09-30"

		w := doRequest(router, http.MethodPost, "/submit_company", body)
		if w.Code != http.StatusOK {
			t.Fatalf("登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}

		result := parseJSON(t, w)
		company := result["companyDetails"].(map[string]any)
		if company["ctc"] != "12LPA" {
			t.Errorf("ctc: got %v, want 12LPA", company["ctc"])
		}
		if company["deadline"] != "2026-09-30" {
			t.Errorf("deadline: got %v, want 2026-09-30", company["deadline"])
		}
	})
}

// TestHandleListCompanies は企業一覧取得ハンドラのテスト。
func TestHandleListCompanies(t *testing.T) {
	t.Parallel()

	t.Run("企業が存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/view_company", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSONArray(t, w)
		if len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("登録済み企業の一覧を取得できる", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		for i := 0; i < 3; i++ {
			w := doRequest(router, http.MethodPost, "/submit_company",
				submitCompanyBody(fmt.Sprintf("Company%d", i)))
			if w.Code != http.StatusOK {
				t.Fatalf("企業%d の登録に失敗: status=%d", i, w.Code)
			}
		}

		w := doRequest(router, http.MethodGet, "/view_company", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSONArray(t, w)
		if len(result) != 3 {
			t.Errorf("配列の長さ: got %d, want 3", len(result))
		}
	})
}

// TestHandleListNotifications は通知監査一覧取得ハンドラのテスト。
func TestHandleListNotifications(t *testing.T) {
	t.Parallel()

	t.Run("通知が存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/notifications/all", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSONArray(t, w)
		if len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("ファンアウト後に監査レコードをcamelCaseで返す", func(t *testing.T) {
		t.Parallel()
		s, router, _ := setupTestServer(t)

		createTestStudent(t, s, "st-1", "1MS21CS001", "山田太郎", "taro@example.com")

		w := doRequest(router, http.MethodPost, "/submit_company", submitCompanyBody("TechCorp"))
		if w.Code != http.StatusOK {
			t.Fatalf("企業登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}

		w2 := doRequest(router, http.MethodGet, "/api/notifications/all", nil)
		if w2.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w2.Code, http.StatusOK)
		}
		result := parseJSONArray(t, w2)
		if len(result) != 1 {
			t.Fatalf("配列の長さ: got %d, want 1", len(result))
		}

		record := result[0]
		if record["studentName"] != "山田太郎" {
			t.Errorf("studentName: got %v, want 山田太郎", record["studentName"])
		}
		if record["companyName"] != "TechCorp" {
			t.Errorf("companyName: got %v, want TechCorp", record["companyName"])
		}
		if record["delivered"] != true {
			t.Errorf("delivered: got %v, want true", record["delivered"])
		}
		if record["sentDate"] == nil || record["sentDate"] == "" {
			t.Error("sentDateが空です")
		}
	})
}
