package http

type getCurrentUserResponse struct {
	User apiUser `json:"user"`
}

type signInRequest struct {
	PasswordCredentials *signInPasswordCredentials `json:"passwordCredentials"`
}

type signInPasswordCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signInResponse struct {
	User        apiUser `json:"user"`
	AccessToken string  `json:"accessToken"`
}

type createUserRequest struct {
	User createUserBody `json:"user"`
}

type createUserBody struct {
	Role        string `json:"role"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type apiUser struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	CreateTime  string `json:"createTime,omitempty"`
	UpdateTime  string `json:"updateTime,omitempty"`
}

// groupRequest is shared by group create (tableId and name) and rename (name).
type groupRequest struct {
	TableID string `json:"tableId"`
	Name    string `json:"name"`
}

type expressionResponse struct {
	Expression string `json:"expression"`
}

type listTablesResponse struct {
	Tables []apiTable `json:"tables"`
}

type apiTable struct {
	ID      string      `json:"id"`
	Columns []apiColumn `json:"columns"`
}

type apiColumn struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Operators []string `json:"operators"`
}
