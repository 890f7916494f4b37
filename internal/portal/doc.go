// Package portal は就職支援ポータルのバックエンド実装を提供する。
//
// 求人応募の受付（履歴書アップロードを含む）、企業・学生の登録、
// ロール別のログイン認証、企業追加時の学生への一斉メール告知を扱う。
// 告知の試行結果は通知監査レコードとして永続化され、ダッシュボード用の
// 件数取得APIから参照できる。
package portal
