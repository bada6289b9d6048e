package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Renderer は Outcome を HTTP レスポンスに変換します。
// HTML が false の場合は {"view", "model"} の JSON で応答します。
type Renderer struct {
	HTML bool
}

// TemplateName はビュー名に対応するテンプレート名を返します。
func TemplateName(view string) string {
	return view + ".tmpl"
}

// Render は Outcome を書き出します。リダイレクトは 303 See Other です。
func (r Renderer) Render(c *gin.Context, status int, out Outcome) {
	if out.IsRedirect() {
		c.Redirect(http.StatusSeeOther, out.Redirect)
		return
	}

	if r.HTML {
		c.HTML(status, TemplateName(out.View), gin.H(out.Model))
		return
	}

	c.JSON(status, gin.H{
		"view":  out.View,
		"model": out.Model,
	})
}

func respondInternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "サーバー内部でエラーが発生しました。",
	})
}
