// Command jokecentral はJoke CentralのBFFサーバーを起動する。
//
// サブコマンド:
//
//	serve        HTTPサーバー（デフォルト）
//	worker       保存済みブラウザセッションの定期削除
//	migrate      データベースマイグレーション
//	healthcheck  起動中サーバーのヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/jokecentral/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "jokecentral: %v\n", err)
		os.Exit(1)
	}
}
