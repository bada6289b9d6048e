package gateway

// ビュー名です。テンプレート名は "<ビュー名>.tmpl" になります。
const (
	ViewHome         = "home"
	ViewIndex        = "index"
	ViewLogin        = "identity/login"
	ViewRegistration = "identity/registration"
	ViewRegistered   = "identity/register"
	ViewUnauthorized = "identity/unauthorized"
)

// モデル属性のキーです。
const (
	AttrLoginForm         = "loginForm"
	AttrRegistration      = "registration"
	AttrIdentity          = "identity"
	AttrErrors            = "errors"
	AttrRegistrationError = "registrationError"
	AttrPrincipal         = "principal"
	AttrRecentActivity    = "recentActivity"
)

// Result は操作の結果種別です。メトリクスと監査イベントの選択に使います。
type Result string

const (
	ResultShown         Result = "shown"
	ResultInvalid       Result = "invalid"
	ResultAuthenticated Result = "authenticated"
	ResultRejected      Result = "rejected"
	ResultRegistered    Result = "registered"
	ResultLoggedOut     Result = "logged_out"
)

// Model はビューに渡す属性です。
type Model map[string]any

// Outcome はビュー選択またはリダイレクト指示です。
// Redirect が空でなければ View と Model は使われません。
type Outcome struct {
	View     string
	Model    Model
	Redirect string
	Result   Result
}

// IsRedirect はリダイレクト指示かどうかを返します。
func (o Outcome) IsRedirect() bool {
	return o.Redirect != ""
}

func view(name string, result Result, model Model) Outcome {
	if model == nil {
		model = Model{}
	}
	return Outcome{View: name, Model: model, Result: result}
}

func redirect(target string, result Result) Outcome {
	return Outcome{Redirect: target, Result: result}
}
