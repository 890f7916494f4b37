// Package middleware はポータル共通のGinミドルウェアを提供する。
// JWT認証、パニック回復、CORSの3種類を含む。
package middleware
