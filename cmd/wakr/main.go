// Command wakr はモーニングコールと習慣トラッキングのWebサービスを起動する。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（デフォルト）
//	worker       期限切れセッション等の定期クリーンアップを実行する
//	migrate      DBマイグレーションを適用して終了する
//	healthcheck  ローカルの/healthを確認する（コンテナのHEALTHCHECK用）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/hitoshi/wakr/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "wakr: %v\n", err)
		stop()
		os.Exit(1)
	}
}
