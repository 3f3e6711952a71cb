package session

import (
	"time"
)

const notifyBuffer = 64

type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Code string

const (
	CodeNoWallet            Code = "no_wallet"
	CodeUserRejected        Code = "user_rejected"
	CodeWrongNetwork        Code = "wrong_network"
	CodeProviderUnavailable Code = "provider_unavailable"
	CodeConnectFailed       Code = "connect_failed"
	CodeMintSubmitted       Code = "mint_submitted"
	CodeMintConfirmed       Code = "mint_confirmed"
	CodeMintFailed          Code = "mint_failed"
	CodeMinted              Code = "minted"
)

// Notification is a user-facing alert raised by the coordinator.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Code    Code      `json:"code"`
	Message string    `json:"message"`
	Link    string    `json:"link,omitempty"`
	Time    time.Time `json:"time"`
}

// notify queues n for subscribers. Loop goroutine only.
func (c *Coordinator) notify(kind Kind, code Code, msg, link string) {
	n := Notification{Kind: kind, Code: code, Message: msg, Link: link, Time: time.Now()}
	select {
	case c.outbox <- n:
	default:
		c.log.Warn("Dropping notification, subscribers are not keeping up", "code", code)
	}
}

func (c *Coordinator) pumpNotifications() {
	for n := range c.outbox {
		c.feed.Send(n)
	}
}
