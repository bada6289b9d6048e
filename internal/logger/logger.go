// Package logger は構造化ログの出力設定を提供します。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup はJSON構造化ログ出力の slog.Logger を生成して返します。
// level には debug, info, warn, error を指定します（不明な値は info）。
func Setup(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

// SetupDefault は Setup したロガーをグローバルロガーとして設定します。
func SetupDefault(w io.Writer, level string) *slog.Logger {
	l := Setup(w, level)
	slog.SetDefault(l)
	return l
}

// LevelForMode は Gin の実行モードに対応するログレベルを返します。
func LevelForMode(ginMode string) string {
	if ginMode == "release" {
		return "info"
	}
	return "debug"
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
