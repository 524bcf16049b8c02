// todoman はタスク管理Webアプリケーションのエントリーポイント。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（デフォルト）
//	worker       期限切れセッションのクリーンアップを定期実行する
//	migrate      データベースマイグレーションを適用する
//	healthcheck  /health を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/todoman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "todoman: %v\n", err)
		os.Exit(1)
	}
}
