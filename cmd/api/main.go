// Package main は identity-gateway のエントリーポイントです。
//
// Usage:
//
//	api [serve]        HTTPサーバーを起動
//	api worker         監査イベントのワーカーを起動
//	api migrate [--down]
package main

import (
	"fmt"
	"os"

	"github.com/yourusername/identity-gateway/internal/app"
)

func main() {
	if err := app.NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
