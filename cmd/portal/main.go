// 就職支援ポータルのエントリポイント。
// 求人応募・企業/学生の登録・ログイン認証と、
// 企業追加時の学生への一斉メール告知を提供する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/placement/internal/portal"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	server, err := portal.NewServer(port)
	if err != nil {
		log.Fatalf("ポータルサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ポータルサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ポータルサービスの起動に失敗: %v", err)
	}
}
