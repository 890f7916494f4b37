package portal

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。文書単位のパーティション構成をテーブルに対応させている。
// companyName / usn / (username, userType) には一意制約を付け、
// 重複登録をストア境界で排除する。
const schema = `
CREATE TABLE IF NOT EXISTS applications (
    -- 応募の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 応募した学生のUSN
    usn TEXT NOT NULL,
    -- 応募先企業のID
    company_id TEXT NOT NULL DEFAULT '',
    -- 応募先企業名
    company_name TEXT NOT NULL,
    -- 応募した職種
    role TEXT NOT NULL DEFAULT '',
    -- 応募者氏名
    full_name TEXT NOT NULL DEFAULT '',
    -- 応募者電話番号
    phone_number TEXT NOT NULL DEFAULT '',
    -- 応募者メールアドレス
    email TEXT NOT NULL DEFAULT '',
    -- 履歴書ファイルの保存パス
    resume_path TEXT NOT NULL,
    -- 応募日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
    -- 企業レコードの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 掲載側が指定する企業ID
    company_id TEXT NOT NULL DEFAULT '',
    -- 企業名。ログインと応募の絞り込みのキーになる
    company_name TEXT NOT NULL,
    -- 募集職種
    role TEXT NOT NULL DEFAULT '',
    -- 勤務地
    location TEXT NOT NULL DEFAULT '',
    -- 定型外フィールド（JSON）
    details TEXT NOT NULL DEFAULT '{}',
    -- 登録日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS students (
    -- 学生レコードの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 学籍番号。初期ログイン資格情報も兼ねる
    usn TEXT NOT NULL,
    -- 氏名
    full_name TEXT NOT NULL DEFAULT '',
    -- メールアドレス。新企業の通知先
    email TEXT NOT NULL DEFAULT '',
    -- プロフィールの追加フィールド（JSON）
    details TEXT NOT NULL DEFAULT '{}',
    -- 登録日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS logins (
    -- 資格情報の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- ユーザー名（学生はUSN、企業は企業名）
    username TEXT NOT NULL,
    -- bcryptハッシュ済みパスワード
    password_hash TEXT NOT NULL,
    -- ユーザー種別（Student / Company / placementofficer）
    user_type TEXT NOT NULL,
    -- 登録日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS notifications (
    -- 通知記録の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 通知先学生のレコードID
    student_id TEXT NOT NULL,
    -- 通知先学生の氏名
    student_name TEXT NOT NULL,
    -- 告知した企業のID
    company_id TEXT NOT NULL DEFAULT '',
    -- 告知した企業名
    company_name TEXT NOT NULL,
    -- メールが実際に届けられたかどうか（0=試行のみ, 1=送信成功）
    delivered INTEGER NOT NULL DEFAULT 0,
    -- 送信試行日時
    sent_date DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS profiles (
    -- プロフィール文書の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 対象学生のUSN（任意）
    usn TEXT NOT NULL DEFAULT '',
    -- 文書本体（JSON）
    data TEXT NOT NULL DEFAULT '{}',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- 企業名の重複登録を排除する一意インデックス。
CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_company_name
    ON companies(company_name);

-- USNの重複登録を排除する一意インデックス。
CREATE UNIQUE INDEX IF NOT EXISTS idx_students_usn
    ON students(usn);

-- 同一種別内でのユーザー名重複を排除する一意インデックス。
CREATE UNIQUE INDEX IF NOT EXISTS idx_logins_username_type
    ON logins(username, user_type);

-- USNによる応募検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_applications_usn
    ON applications(usn);

-- 企業名による応募検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_applications_company_name
    ON applications(company_name);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
