package model

type PutKeyParams struct {
	Value string `json:"Value"`
}

type PutKeyResponse struct {
	TxID    int64 `json:"TxID"`
	Created bool  `json:"Created,omitempty"`
}

type DeleteKeyResponse struct {
	TxID int64 `json:"TxID"`
}

type GetKeyResponse struct {
	TxID   int64  `json:"TxID"`
	Value  string `json:"Value,omitempty"`
	Exists bool   `json:"Exists"`
}

type GetMembersResponse struct {
	Self    string   `json:"Self"`
	Members []Member `json:"Members"`
}

type ErrorResponse struct {
	Error string `json:"Error"`
}
