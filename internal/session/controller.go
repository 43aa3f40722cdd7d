package session

import (
	"sync"

	"go.uber.org/zap"

	"OneTapTip/internal/mirror"
	"OneTapTip/internal/oracle"
	"OneTapTip/utils"
)

// Controller owns the session-scoped loops. Connect starts the balance oracle
// and the receipt mirror for the account; disconnect stops both and resets
// their state. Both starts are idempotent for an unchanged account.
type Controller struct {
	oracle *oracle.Oracle
	mirror *mirror.Mirror
	log    *zap.Logger

	mu      sync.Mutex
	account string
}

func NewController(o *oracle.Oracle, m *mirror.Mirror, log *zap.Logger) *Controller {
	return &Controller{oracle: o, mirror: m, log: log}
}

// OnConnect reacts to a wallet connect event. A second connect for the same
// account without an intervening disconnect changes nothing; a different
// account is treated as an implicit reconnect.
func (c *Controller) OnConnect(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.account == account {
		return
	}
	if c.account != "" {
		c.oracle.Stop()
		c.mirror.Stop()
	}
	c.account = account
	c.oracle.Start(account)
	c.mirror.Start(account)
	c.log.Info("session connected", zap.String("account", utils.ShortenAddress(account)))
}

// OnDisconnect stops polling and the subscription and clears the snapshot and
// view back to their initial states.
func (c *Controller) OnDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.account == "" {
		return
	}
	c.account = ""
	c.oracle.Stop()
	c.mirror.Stop()
	c.log.Info("session disconnected")
}

// Account returns the connected account, if any.
func (c *Controller) Account() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account, c.account != ""
}
