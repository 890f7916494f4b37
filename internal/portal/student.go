package portal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// studentKnownFields は学生登録リクエストのうち固定カラムに対応するキー。
// フィールド名はフロントエンドが送る表記（fullnameは小文字）。
var studentKnownFields = map[string]struct{}{
	"usn":      {},
	"fullname": {},
	"email":    {},
}

// parseStudentRequest は自由形式の学生登録リクエストを解析する。
func parseStudentRequest(raw map[string]any) (Student, error) {
	usn, _ := raw["usn"].(string)
	if usn == "" {
		return Student{}, fmt.Errorf("usnは必須")
	}

	extras := make(map[string]any)
	for k, v := range raw {
		if _, known := studentKnownFields[k]; !known {
			extras[k] = v
		}
	}
	detailsJSON, err := json.Marshal(extras)
	if err != nil {
		return Student{}, fmt.Errorf("定型外フィールドのシリアライズに失敗: %w", err)
	}

	fullname, _ := raw["fullname"].(string)
	email, _ := raw["email"].(string)

	return Student{
		ID:       uuid.New().String(),
		USN:      usn,
		FullName: fullname,
		Email:    email,
		Details:  string(detailsJSON),
	}, nil
}

// studentToResponse は学生レコードをcamelCaseのレスポンス用マップに変換する。
// detailsに退避した追加フィールドも展開して返す。
func studentToResponse(st Student) map[string]any {
	resp := make(map[string]any)
	if st.Details != "" {
		if err := json.Unmarshal([]byte(st.Details), &resp); err != nil {
			log.Printf("追加フィールドの復元に失敗: usn=%s, %v", st.USN, err)
			resp = make(map[string]any)
		}
	}
	resp["id"] = st.ID
	resp["usn"] = st.USN
	resp["fullname"] = st.FullName
	resp["email"] = st.Email
	resp["createdAt"] = st.CreatedAt.Format("2006-01-02T15:04:05Z")
	return resp
}

// handleAddStudent は学生登録を処理するハンドラを返す。
// 学生レコードの挿入に続けて、USNを初期ユーザー名・初期パスワードとする
// ログイン資格情報を作成する（パスワードの保存はハッシュ）。
func (s *Server) handleAddStudent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw map[string]any
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "Invalid student details",
				"code":    "VALIDATION_ERROR",
			})
			return
		}

		student, err := parseStudentRequest(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "usn is required",
				"code":    "VALIDATION_ERROR",
			})
			return
		}

		if err := s.store.CreateStudent(c.Request.Context(), student); err != nil {
			if errors.Is(err, ErrDuplicate) {
				c.JSON(http.StatusConflict, gin.H{
					"message": fmt.Sprintf("Student %q already exists", student.USN),
					"code":    "DUPLICATE_ENTITY",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error adding student details",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("学生の挿入エラー: %v", err)
			return
		}

		// 初期パスワードはUSN。初回ログイン後の変更を前提とした規約。
		hash, err := hashInitialPassword(student.USN)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error adding login credentials",
				"code":    "INTERNAL",
			})
			log.Printf("学生パスワードのハッシュ化エラー: %v", err)
			return
		}
		if err := s.store.CreateLogin(c.Request.Context(), Login{
			ID:           uuid.New().String(),
			Username:     student.USN,
			PasswordHash: hash,
			UserType:     userTypeStudent,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error adding login credentials",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("学生資格情報の挿入エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Student details and login credentials added successfully",
		})
	}
}

// handleGetProfile はUSNで学生プロフィールを取得するハンドラを返す。
// 該当する学生が存在しない場合のみ404を返す。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")

		student, err := s.store.GetStudentByUSN(c.Request.Context(), username)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{
				"message": "Profile not found",
				"code":    "NOT_FOUND",
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error fetching profile",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("プロフィール取得エラー: usn=%s, %v", username, err)
			return
		}

		c.JSON(http.StatusOK, studentToResponse(student))
	}
}

// handleCreateProfile は自由形式のプロフィール文書を作成するハンドラを返す。
// フロントエンドはHTTPステータスではなくsuccessフラグで成否を判定するため、
// 失敗時もステータスは200のままsuccess:falseを返す。
func (s *Server) handleCreateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw map[string]any
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Error creating profile",
				"code":    "VALIDATION_ERROR",
			})
			return
		}

		dataJSON, err := json.Marshal(raw)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Error creating profile",
				"code":    "INTERNAL",
			})
			return
		}

		usn, _ := raw["usn"].(string)
		if err := s.store.CreateProfile(c.Request.Context(), Profile{
			ID:   uuid.New().String(),
			USN:  usn,
			Data: string(dataJSON),
		}); err != nil {
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Error creating profile",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("プロフィールの挿入エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Profile created successfully",
		})
	}
}

// handleUpdateProfile は学生レコードのフィールド単位のマージ更新を処理するハンドラを返す。
// パッチに含まれるフィールドだけを上書きし、含まれないフィールドは変更しない。
// USNに一致する学生が存在しない場合は404を返す。
func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch map[string]any
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid profile data",
				"code":    "VALIDATION_ERROR",
			})
			return
		}

		usn, _ := patch["usn"].(string)
		if usn == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "usn is required",
				"code":    "VALIDATION_ERROR",
			})
			return
		}

		student, err := s.store.GetStudentByUSN(c.Request.Context(), usn)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Profile not found or no changes made",
				"code":    "NOT_FOUND",
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Error updating profile",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("学生の取得エラー: usn=%s, %v", usn, err)
			return
		}

		merged, err := mergeStudentPatch(student, patch)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Error updating profile",
				"code":    "INTERNAL",
			})
			log.Printf("プロフィールのマージエラー: usn=%s, %v", usn, err)
			return
		}

		if err := s.store.UpdateStudent(c.Request.Context(), merged); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Error updating profile",
				"code":    "STORE_UNAVAILABLE",
			})
			log.Printf("学生の更新エラー: usn=%s, %v", usn, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Profile updated successfully",
		})
	}
}

// mergeStudentPatch は学生レコードにパッチをフィールド単位で適用する。
// 固定カラムはパッチに存在する場合のみ上書きし、定型外フィールドは
// 既存のdetailsへキー単位でマージする。
func mergeStudentPatch(student Student, patch map[string]any) (Student, error) {
	if v, ok := patch["fullname"].(string); ok {
		student.FullName = v
	}
	if v, ok := patch["email"].(string); ok {
		student.Email = v
	}

	extras := make(map[string]any)
	if student.Details != "" {
		if err := json.Unmarshal([]byte(student.Details), &extras); err != nil {
			return Student{}, fmt.Errorf("既存の追加フィールドの解析に失敗: %w", err)
		}
	}
	for k, v := range patch {
		if _, known := studentKnownFields[k]; !known {
			extras[k] = v
		}
	}

	detailsJSON, err := json.Marshal(extras)
	if err != nil {
		return Student{}, fmt.Errorf("追加フィールドのシリアライズに失敗: %w", err)
	}
	student.Details = string(detailsJSON)

	return student, nil
}
