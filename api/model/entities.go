package model

type Member struct {
	Addr        string `json:"Addr"`
	Heartbeat   int64  `json:"Heartbeat"`
	LastUpdated int64  `json:"LastUpdated"`
}
