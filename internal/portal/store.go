package portal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicate は一意制約違反（企業名・USN・ユーザー名の重複）を表す。
var ErrDuplicate = errors.New("重複するレコードが既に存在します")

// Store はポータルの全パーティションへのクエリ実行オブジェクト。
// 各操作は単一ラウンドトリップで、パーティションをまたぐ原子性は持たない。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Application は学生の求人応募レコード。
type Application struct {
	// ID は応募の一意識別子。
	ID string
	// USN は応募した学生の学籍番号。
	USN string
	// CompanyID は応募先企業のID。
	CompanyID string
	// CompanyName は応募先企業名。
	CompanyName string
	// Role は応募した職種。
	Role string
	// FullName は応募者氏名。
	FullName string
	// PhoneNumber は応募者電話番号。
	PhoneNumber string
	// Email は応募者メールアドレス。
	Email string
	// ResumePath は履歴書ファイルの保存パス。
	ResumePath string
	// CreatedAt は応募日時。
	CreatedAt time.Time
}

// Company は企業の求人掲載レコード。
type Company struct {
	// ID は企業レコードの一意識別子。
	ID string
	// CompanyID は掲載側が指定する企業ID。
	CompanyID string
	// CompanyName は企業名。
	CompanyName string
	// Role は募集職種。
	Role string
	// Location は勤務地。
	Location string
	// Details は定型外フィールドのJSON文字列。
	Details string
	// CreatedAt は登録日時。
	CreatedAt time.Time
}

// Student は学生レコード。
type Student struct {
	// ID は学生レコードの一意識別子。
	ID string
	// USN は学籍番号。
	USN string
	// FullName は氏名。
	FullName string
	// Email はメールアドレス。
	Email string
	// Details はプロフィール追加フィールドのJSON文字列。
	Details string
	// CreatedAt は登録日時。
	CreatedAt time.Time
}

// Login はログイン資格情報レコード。
type Login struct {
	// ID は資格情報の一意識別子。
	ID string
	// Username はユーザー名。
	Username string
	// PasswordHash はbcryptハッシュ済みパスワード。
	PasswordHash string
	// UserType はユーザー種別。
	UserType string
	// CreatedAt は登録日時。
	CreatedAt time.Time
}

// Notification は企業告知の通知監査レコード。
type Notification struct {
	// ID は通知記録の一意識別子。
	ID string
	// StudentID は通知先学生のレコードID。
	StudentID string
	// StudentName は通知先学生の氏名。
	StudentName string
	// CompanyID は告知した企業のID。
	CompanyID string
	// CompanyName は告知した企業名。
	CompanyName string
	// Delivered はメールが実際に届けられたかどうか。
	// falseは「送信を試行したが失敗した」ことを表す。
	Delivered bool
	// SentDate は送信試行日時。
	SentDate time.Time
}

// Profile は自由形式のプロフィール文書レコード。
type Profile struct {
	// ID はプロフィール文書の一意識別子。
	ID string
	// USN は対象学生のUSN。未指定の場合は空。
	USN string
	// Data は文書本体のJSON文字列。
	Data string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// wrapInsertErr は挿入エラーを分類する。一意制約違反はErrDuplicateに写像する。
func wrapInsertErr(op string, err error) error {
	if err == nil {
		return nil
	}
	// modernc.org/sqlite は制約違反を "UNIQUE constraint failed: ..." という
	// メッセージで返すため、文字列で判定する。
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateApplication は応募レコードを挿入する。
func (s *Store) CreateApplication(ctx context.Context, a Application) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, usn, company_id, company_name, role, full_name, phone_number, email, resume_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.USN, a.CompanyID, a.CompanyName, a.Role, a.FullName, a.PhoneNumber, a.Email, a.ResumePath,
	)
	return wrapInsertErr("応募の挿入に失敗", err)
}

// ListApplicationsByUSN は指定した学生の応募一覧を返す。
func (s *Store) ListApplicationsByUSN(ctx context.Context, usn string) ([]Application, error) {
	return s.listApplications(ctx, `WHERE usn = ?`, usn)
}

// ListApplicationsByCompanyName は指定した企業への応募一覧を返す。
func (s *Store) ListApplicationsByCompanyName(ctx context.Context, companyName string) ([]Application, error) {
	return s.listApplications(ctx, `WHERE company_name = ?`, companyName)
}

// ListApplications は全応募の一覧を返す。
func (s *Store) ListApplications(ctx context.Context) ([]Application, error) {
	return s.listApplications(ctx, "")
}

// listApplications は応募一覧クエリの共通処理。
func (s *Store) listApplications(ctx context.Context, where string, args ...any) ([]Application, error) {
	query := `
		SELECT id, usn, company_id, company_name, role, full_name, phone_number, email, resume_path, created_at
		FROM applications ` + where + ` ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.USN, &a.CompanyID, &a.CompanyName, &a.Role, &a.FullName, &a.PhoneNumber, &a.Email, &a.ResumePath, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("応募行の読み取りに失敗: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// CreateCompany は企業レコードを挿入する。
// 企業名が重複している場合はErrDuplicateを返す。
func (s *Store) CreateCompany(ctx context.Context, c Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, company_id, company_name, role, location, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.CompanyName, c.Role, c.Location, c.Details,
	)
	return wrapInsertErr("企業の挿入に失敗", err)
}

// GetCompanyByName は企業名で企業レコードを1件取得する。
// 見つからない場合はsql.ErrNoRowsを返す。
func (s *Store) GetCompanyByName(ctx context.Context, companyName string) (Company, error) {
	var c Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, company_name, role, location, details, created_at
		FROM companies WHERE company_name = ?`, companyName,
	).Scan(&c.ID, &c.CompanyID, &c.CompanyName, &c.Role, &c.Location, &c.Details, &c.CreatedAt)
	return c, err
}

// ListCompanies は全企業の一覧を返す。
func (s *Store) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, company_name, role, location, details, created_at
		FROM companies ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("企業一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.CompanyName, &c.Role, &c.Location, &c.Details, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("企業行の読み取りに失敗: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// CountCompanies は企業レコードの総数を返す。
func (s *Store) CountCompanies(ctx context.Context) (int64, error) {
	return s.count(ctx, "companies")
}

// CreateStudent は学生レコードを挿入する。
// USNが重複している場合はErrDuplicateを返す。
func (s *Store) CreateStudent(ctx context.Context, st Student) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, usn, full_name, email, details)
		VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.USN, st.FullName, st.Email, st.Details,
	)
	return wrapInsertErr("学生の挿入に失敗", err)
}

// GetStudentByUSN はUSNで学生レコードを1件取得する。
// 見つからない場合はsql.ErrNoRowsを返す。
func (s *Store) GetStudentByUSN(ctx context.Context, usn string) (Student, error) {
	var st Student
	err := s.db.QueryRowContext(ctx, `
		SELECT id, usn, full_name, email, details, created_at
		FROM students WHERE usn = ?`, usn,
	).Scan(&st.ID, &st.USN, &st.FullName, &st.Email, &st.Details, &st.CreatedAt)
	return st, err
}

// ListStudents は全学生の一覧を返す。ファンアウトの通知対象の列挙に使用する。
func (s *Store) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, usn, full_name, email, details, created_at
		FROM students ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("学生一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var students []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.USN, &st.FullName, &st.Email, &st.Details, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("学生行の読み取りに失敗: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// UpdateStudent はUSNで特定した学生レコードの氏名・メール・追加フィールドを書き換える。
func (s *Store) UpdateStudent(ctx context.Context, st Student) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE students SET full_name = ?, email = ?, details = ? WHERE usn = ?`,
		st.FullName, st.Email, st.Details, st.USN,
	)
	if err != nil {
		return fmt.Errorf("学生の更新に失敗: %w", err)
	}
	return nil
}

// CountStudents は学生レコードの総数を返す。
func (s *Store) CountStudents(ctx context.Context) (int64, error) {
	return s.count(ctx, "students")
}

// CreateLogin はログイン資格情報を挿入する。
// 同一種別内でユーザー名が重複している場合はErrDuplicateを返す。
func (s *Store) CreateLogin(ctx context.Context, l Login) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logins (id, username, password_hash, user_type)
		VALUES (?, ?, ?, ?)`,
		l.ID, l.Username, l.PasswordHash, l.UserType,
	)
	return wrapInsertErr("資格情報の挿入に失敗", err)
}

// GetLoginByUsernameAndType はユーザー名と種別で資格情報を1件取得する。
// 見つからない場合はsql.ErrNoRowsを返す。
func (s *Store) GetLoginByUsernameAndType(ctx context.Context, username, userType string) (Login, error) {
	var l Login
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, user_type, created_at
		FROM logins WHERE username = ? AND user_type = ?`, username, userType,
	).Scan(&l.ID, &l.Username, &l.PasswordHash, &l.UserType, &l.CreatedAt)
	return l, err
}

// CreateNotification は通知監査レコードを挿入する。
func (s *Store) CreateNotification(ctx context.Context, n Notification) error {
	delivered := 0
	if n.Delivered {
		delivered = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, student_id, student_name, company_id, company_name, delivered)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.StudentID, n.StudentName, n.CompanyID, n.CompanyName, delivered,
	)
	return wrapInsertErr("通知記録の挿入に失敗", err)
}

// ListNotifications は全通知監査レコードの一覧を返す。
func (s *Store) ListNotifications(ctx context.Context) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, student_name, company_id, company_name, delivered, sent_date
		FROM notifications ORDER BY sent_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		var delivered int64
		if err := rows.Scan(&n.ID, &n.StudentID, &n.StudentName, &n.CompanyID, &n.CompanyName, &delivered, &n.SentDate); err != nil {
			return nil, fmt.Errorf("通知行の読み取りに失敗: %w", err)
		}
		n.Delivered = delivered != 0
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CountNotifications は通知監査レコードの総数を返す。
func (s *Store) CountNotifications(ctx context.Context) (int64, error) {
	return s.count(ctx, "notifications")
}

// CreateProfile は自由形式のプロフィール文書を挿入する。
func (s *Store) CreateProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, usn, data) VALUES (?, ?, ?)`,
		p.ID, p.USN, p.Data,
	)
	return wrapInsertErr("プロフィールの挿入に失敗", err)
}

// count は指定テーブルの行数を返す共通処理。
// テーブル名はスキーマ内の固定値のみ渡されるため、プレースホルダは使わない。
func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s の件数取得に失敗: %w", table, err)
	}
	return n, nil
}
