// Command authman はユーザー認証・認可APIサーバーを起動する。
//
// 使い方:
//
//	authman [serve|migrate|promote <username> <role>|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/authman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
